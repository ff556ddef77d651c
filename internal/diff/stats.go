package diff

import "fmt"

// Stats summarizes a Diff. Whitespace-only hunks are counted in WhitespaceOnly and nowhere else.
type Stats struct {
	Inserts  int // OpInsert hunks
	Deletes  int // OpDelete hunks
	Replaces int // OpReplace hunks that are not whitespace-only

	WhitespaceOnly int

	LinesAdded     int
	LinesRemoved   int
	LinesUnchanged int
}

// Stats computes statistics for d.
func (d Diff) Stats() Stats {
	var s Stats
	for _, h := range d.Hunks {
		switch {
		case h.Op == OpEqual:
			s.LinesUnchanged += h.OldRange.Count
			continue
		case h.WhitespaceOnly:
			s.WhitespaceOnly++
			continue
		case h.Op == OpInsert:
			s.Inserts++
		case h.Op == OpDelete:
			s.Deletes++
		case h.Op == OpReplace:
			s.Replaces++
		}
		s.LinesAdded += h.NewRange.Count
		s.LinesRemoved += h.OldRange.Count
	}
	return s
}

// Changes returns the number of change hunks, excluding whitespace-only ones.
func (s Stats) Changes() int {
	return s.Inserts + s.Deletes + s.Replaces
}

// String returns a short description like "2 changes, +3 -1".
func (s Stats) String() string {
	noun := "changes"
	if s.Changes() == 1 {
		noun = "change"
	}
	str := fmt.Sprintf("%d %s, +%d -%d", s.Changes(), noun, s.LinesAdded, s.LinesRemoved)
	if s.WhitespaceOnly > 0 {
		str += fmt.Sprintf(" (%d whitespace-only)", s.WhitespaceOnly)
	}
	return str
}
