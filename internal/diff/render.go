package diff

import (
	"fmt"
	"strings"
)

// ANSI colors, applied only when rendering with color.
const (
	colorReset    = "\x1b[0m"
	colorRed      = "\x1b[31m"
	colorGreen    = "\x1b[32m"
	colorMagenta  = "\x1b[35m"
	colorCyanBold = "\x1b[1;36m"
)

// RenderUnifiedDiff returns a unified diff. If color, the diff will include ANSI color markers.
//
// Hunk headers are computed from each hunk's line ranges. contextSize controls how many unchanged lines are shown around changes; two change groups separated
// by at most 2*contextSize unchanged lines share one @@ section. If there are no changes, only the file headers are returned.
func (d Diff) RenderUnifiedDiff(color bool, fromFilename string, toFilename string, contextSize int) string {
	if contextSize < 0 {
		contextSize = 0
	}
	colorize := func(s, code string) string {
		if !color {
			return s
		}
		return code + s + colorReset
	}

	out := []string{
		colorize("--- "+fromFilename, colorCyanBold),
		colorize("+++ "+toFilename, colorCyanBold),
	}

	for _, g := range d.changeGroups(contextSize) {
		var body []string
		oldCount, newCount := 0, 0
		context := func(lines []string) {
			for _, ln := range lines {
				core, _ := trimEOL(ln, defaultEOL)
				body = append(body, " "+core)
			}
			oldCount += len(lines)
			newCount += len(lines)
		}

		first := d.Hunks[g.first]
		var pre []string
		if g.first > 0 {
			prev := splitPreserveEOL(d.Hunks[g.first-1].OldText, defaultEOL)
			pre = prev[len(prev)-min(contextSize, len(prev)):]
		}
		context(pre)

		for hi := g.first; hi <= g.last; hi++ {
			h := d.Hunks[hi]
			if h.Op == OpEqual {
				context(splitPreserveEOL(h.OldText, defaultEOL))
				continue
			}
			for _, ln := range h.Lines {
				oldCore, _ := trimEOL(ln.OldText, defaultEOL)
				newCore, _ := trimEOL(ln.NewText, defaultEOL)
				switch ln.Op {
				case OpEqual:
					body = append(body, " "+oldCore)
				case OpDelete:
					body = append(body, colorize("-"+oldCore, colorRed))
				case OpInsert:
					body = append(body, colorize("+"+newCore, colorGreen))
				case OpReplace:
					body = append(body, colorize("-"+oldCore, colorRed), colorize("+"+newCore, colorGreen))
				}
			}
			oldCount += h.OldRange.Count
			newCount += h.NewRange.Count
		}

		if g.last+1 < len(d.Hunks) {
			next := splitPreserveEOL(d.Hunks[g.last+1].OldText, defaultEOL)
			context(next[:min(contextSize, len(next))])
		}

		oldStart := unifiedStart(first.OldRange.Start-len(pre), oldCount)
		newStart := unifiedStart(first.NewRange.Start-len(pre), newCount)
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", oldStart, oldCount, newStart, newCount)
		out = append(out, colorize(header, colorMagenta))
		out = append(out, body...)
	}

	return strings.Join(out, "\n")
}

// unifiedStart converts a 0-based line index into a unified diff start line. An empty side reports the line before the change.
func unifiedStart(index, count int) int {
	if count == 0 {
		return index
	}
	return index + 1
}

type changeGroup struct {
	first, last int // hunk indexes; both are change hunks
}

// changeGroups clusters change hunks whose separating equal hunks are at most 2*contextSize lines long.
func (d Diff) changeGroups(contextSize int) []changeGroup {
	var groups []changeGroup
	for i, h := range d.Hunks {
		if h.Op == OpEqual {
			continue
		}
		if n := len(groups); n > 0 {
			g := &groups[n-1]
			gap := 0
			for k := g.last + 1; k < i; k++ {
				gap += d.Hunks[k].OldRange.Count
			}
			if gap <= 2*contextSize {
				g.last = i
				continue
			}
		}
		groups = append(groups, changeGroup{first: i, last: i})
	}
	return groups
}
