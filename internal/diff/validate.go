package diff

import (
	"errors"
	"fmt"
	"strings"
)

// validate checks the invariants documented on Diff, DiffHunk, DiffLine, and DiffSpan, and returns the first violation.
func (d Diff) validate() error {
	var oldAll, newAll strings.Builder
	var oldLine, newLine int
	for hi, h := range d.Hunks {
		at := fmt.Sprintf("hunk[%d]", hi)
		if h.OldRange.Start != oldLine || h.NewRange.Start != newLine {
			return fmt.Errorf("%s: ranges start at (%d, %d), want (%d, %d)", at, h.OldRange.Start, h.NewRange.Start, oldLine, newLine)
		}
		if h.OldRange.Count != countLines(h.OldText) || h.NewRange.Count != countLines(h.NewText) {
			return fmt.Errorf("%s: range counts do not match line counts", at)
		}
		if h.WhitespaceOnly && h.Op != OpReplace {
			return fmt.Errorf("%s: WhitespaceOnly requires OpReplace", at)
		}
		if err := checkOp(at, h.Op, h.OldText, h.NewText); err != nil {
			return err
		}
		oldLine, newLine = h.OldRange.End(), h.NewRange.End()
		oldAll.WriteString(h.OldText)
		newAll.WriteString(h.NewText)

		if h.Op == OpEqual {
			if h.Lines != nil {
				return fmt.Errorf("%s: OpEqual requires Lines==nil", at)
			}
			continue
		}
		if err := validateLines(at, h); err != nil {
			return err
		}
	}
	if d.OldText != oldAll.String() || d.NewText != newAll.String() {
		return errors.New("diff: hunks do not reconstruct the texts")
	}
	return nil
}

func validateLines(at string, h DiffHunk) error {
	var oldAll, newAll strings.Builder
	for li, ln := range h.Lines {
		lat := fmt.Sprintf("%s.line[%d]", at, li)
		if err := checkOp(lat, ln.Op, ln.OldText, ln.NewText); err != nil {
			return err
		}
		oldAll.WriteString(ln.OldText)
		newAll.WriteString(ln.NewText)

		if ln.Op == OpEqual {
			if ln.Spans != nil {
				return fmt.Errorf("%s: OpEqual requires Spans==nil", lat)
			}
			continue
		}

		var oldSpans, newSpans strings.Builder
		for si, sp := range ln.Spans {
			sat := fmt.Sprintf("%s.span[%d]", lat, si)
			if strings.Contains(sp.OldText, defaultEOL) || strings.Contains(sp.NewText, defaultEOL) {
				return fmt.Errorf("%s: span contains EOL", sat)
			}
			if err := checkOp(sat, sp.Op, sp.OldText, sp.NewText); err != nil {
				return err
			}
			oldSpans.WriteString(sp.OldText)
			newSpans.WriteString(sp.NewText)
		}
		if oldCore, _ := trimEOL(ln.OldText, defaultEOL); oldCore != oldSpans.String() {
			return fmt.Errorf("%s: spans do not reconstruct OldText", lat)
		}
		if newCore, _ := trimEOL(ln.NewText, defaultEOL); newCore != newSpans.String() {
			return fmt.Errorf("%s: spans do not reconstruct NewText", lat)
		}
	}
	if h.OldText != oldAll.String() || h.NewText != newAll.String() {
		return fmt.Errorf("%s: lines do not reconstruct the hunk", at)
	}
	return nil
}

// checkOp verifies which of oldText and newText may be empty for op.
func checkOp(at string, op Op, oldText, newText string) error {
	var ok bool
	switch op {
	case OpEqual:
		ok = oldText == newText
	case OpInsert:
		ok = oldText == "" && newText != ""
	case OpDelete:
		ok = oldText != "" && newText == ""
	case OpReplace:
		ok = oldText != "" && newText != ""
	default:
		return fmt.Errorf("%s: unknown op %d", at, op)
	}
	if !ok {
		return fmt.Errorf("%s: texts (%q, %q) are invalid for %s", at, oldText, newText, op)
	}
	return nil
}

// countLines returns the number of lines in text; a final line without an EOL counts.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	return len(splitPreserveEOL(text, defaultEOL))
}
