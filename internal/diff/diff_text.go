package diff

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// TextOptions controls line-level diffing.
type TextOptions struct {
	// IgnoreWhitespace aligns lines by their whitespace-normalized content. Lines that differ only in whitespace are still reported, but as OpReplace hunks with
	// WhitespaceOnly set, so reconstruction of both sides is unaffected.
	IgnoreWhitespace bool
}

// DiffText diffs oldText to newText, returning a Diff.
func DiffText(oldText, newText string) Diff {
	return DiffTextOptions(oldText, newText, TextOptions{})
}

// DiffTextOptions diffs oldText to newText with opts. It is total: any pair of strings produces a Diff satisfying the package invariants.
func DiffTextOptions(oldText, newText string, opts TextOptions) Diff {
	oldLines := splitPreserveEOL(oldText, defaultEOL)
	newLines := splitPreserveEOL(newText, defaultEOL)

	key := identityKey
	if opts.IgnoreWhitespace {
		key = whitespaceKey
	}
	rOld, rNew := encodeLines(oldLines, newLines, key)

	dmp := diffmatchpatch.New()
	lineDiffs := dmp.DiffMainRunes(rOld, rNew, false)
	lineDiffs = dmp.DiffCleanupMerge(lineDiffs)

	b := hunkBuilder{oldLines: oldLines, newLines: newLines}
	for _, d := range lineDiffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			b.equal(n)
		case diffmatchpatch.DiffDelete:
			b.delete(n)
		case diffmatchpatch.DiffInsert:
			b.insert(n)
		}
	}
	b.flushChange()
	b.flushEqual()

	diff := Diff{OldText: oldText, NewText: newText, Hunks: b.hunks}

	if err := diff.validate(); err != nil {
		panic(fmt.Errorf("DiffText: validate failed with %v", err))
	}

	return diff
}

func identityKey(line string) string {
	return line
}

// whitespaceKey collapses every whitespace run in line to a single space and trims both ends.
func whitespaceKey(line string) string {
	return strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
}

// encodeLines maps each distinct line key to a rune so the line sequences can be diffed as rune strings. Surrogate code points are skipped since they do not
// survive conversion to string.
func encodeLines(oldLines, newLines []string, key func(string) string) ([]rune, []rune) {
	ids := make(map[string]rune)
	next := rune(1)
	encode := func(lines []string) []rune {
		out := make([]rune, len(lines))
		for i, ln := range lines {
			k := key(ln)
			r, ok := ids[k]
			if !ok {
				if next >= 0xD800 && next <= 0xDFFF {
					next = 0xE000
				}
				r = next
				ids[k] = r
				next++
			}
			out[i] = r
		}
		return out
	}
	return encode(oldLines), encode(newLines)
}

// hunkBuilder walks the line-level edit script positionally, consuming lines from oldLines/newLines, and groups them into hunks.
type hunkBuilder struct {
	oldLines []string
	newLines []string
	oi, ni   int // next unconsumed line on each side

	hunks []DiffHunk

	eq                 []string
	eqOldAt, eqNewAt   int
	dels, ins          []string
	chgOldAt, chgNewAt int
	wsOnly             bool
}

// equal consumes n aligned line pairs. Pairs whose text differs (possible only under a whitespace-insensitive key) join the pending change group.
func (b *hunkBuilder) equal(n int) {
	for k := 0; k < n; k++ {
		o, nw := b.oldLines[b.oi], b.newLines[b.ni]
		if o == nw {
			b.flushChange()
			if len(b.eq) == 0 {
				b.eqOldAt, b.eqNewAt = b.oi, b.ni
			}
			b.eq = append(b.eq, o)
		} else {
			b.startChange(true)
			b.dels = append(b.dels, o)
			b.ins = append(b.ins, nw)
		}
		b.oi++
		b.ni++
	}
}

func (b *hunkBuilder) delete(n int) {
	b.startChange(false)
	b.dels = append(b.dels, b.oldLines[b.oi:b.oi+n]...)
	b.oi += n
}

func (b *hunkBuilder) insert(n int) {
	b.startChange(false)
	b.ins = append(b.ins, b.newLines[b.ni:b.ni+n]...)
	b.ni += n
}

// startChange flushes pending equal lines and opens a change group if none is open. ws reports whether the lines about to be added differ only in whitespace.
func (b *hunkBuilder) startChange(ws bool) {
	b.flushEqual()
	if len(b.dels) == 0 && len(b.ins) == 0 {
		b.chgOldAt, b.chgNewAt = b.oi, b.ni
		b.wsOnly = true
	}
	b.wsOnly = b.wsOnly && ws
}

func (b *hunkBuilder) flushEqual() {
	if len(b.eq) == 0 {
		return
	}
	text := strings.Join(b.eq, "")
	b.hunks = append(b.hunks, DiffHunk{
		Op:       OpEqual,
		OldText:  text,
		NewText:  text,
		OldRange: LineRange{Start: b.eqOldAt, Count: len(b.eq)},
		NewRange: LineRange{Start: b.eqNewAt, Count: len(b.eq)},
	})
	b.eq = nil
}

func (b *hunkBuilder) flushChange() {
	if len(b.dels) == 0 && len(b.ins) == 0 {
		return
	}
	b.hunks = append(b.hunks, DiffHunk{
		Op:             opFor(len(b.dels) > 0, len(b.ins) > 0),
		OldText:        strings.Join(b.dels, ""),
		NewText:        strings.Join(b.ins, ""),
		Lines:          buildDiffLines(b.dels, b.ins),
		OldRange:       LineRange{Start: b.chgOldAt, Count: len(b.dels)},
		NewRange:       LineRange{Start: b.chgNewAt, Count: len(b.ins)},
		WhitespaceOnly: b.wsOnly,
	})
	b.dels = nil
	b.ins = nil
	b.wsOnly = false
}

// opFor returns the Op for a change that has old text (hasOld) and/or new text (hasNew). It returns OpEqual if neither.
func opFor(hasOld, hasNew bool) Op {
	switch {
	case hasOld && hasNew:
		return OpReplace
	case hasOld:
		return OpDelete
	case hasNew:
		return OpInsert
	default:
		return OpEqual
	}
}

// buildDiffLines constructs DiffLine entries and inline spans.
func buildDiffLines(deleteLines, insertLines []string) []DiffLine {
	// Pair up replacements for min(len(delete), len(insert)); leftovers are pure deletes/inserts.
	n := len(deleteLines)
	if len(insertLines) < n {
		n = len(insertLines)
	}
	var lines []DiffLine
	dmp := diffmatchpatch.New()

	for i := 0; i < n; i++ {
		oldLine := deleteLines[i]
		newLine := insertLines[i]
		oldCore, _ := trimEOL(oldLine, defaultEOL)
		newCore, _ := trimEOL(newLine, defaultEOL)
		if oldLine == newLine {
			lines = append(lines, DiffLine{Op: OpEqual, OldText: oldLine, NewText: newLine, Spans: nil})
			continue
		}
		spans := diffsToSpans(dmp.DiffMain(oldCore, newCore, false))
		lines = append(lines, DiffLine{Op: OpReplace, OldText: oldLine, NewText: newLine, Spans: spans})
	}
	for i := n; i < len(deleteLines); i++ {
		oldLine := deleteLines[i]
		oldCore, _ := trimEOL(oldLine, defaultEOL)
		var spans []DiffSpan
		if len(oldCore) > 0 {
			spans = []DiffSpan{{Op: OpDelete, OldText: oldCore, NewText: ""}}
		}
		lines = append(lines, DiffLine{Op: OpDelete, OldText: oldLine, NewText: "", Spans: spans})
	}
	for i := n; i < len(insertLines); i++ {
		newLine := insertLines[i]
		newCore, _ := trimEOL(newLine, defaultEOL)
		var spans []DiffSpan
		if len(newCore) > 0 {
			spans = []DiffSpan{{Op: OpInsert, OldText: "", NewText: newCore}}
		}
		lines = append(lines, DiffLine{Op: OpInsert, OldText: "", NewText: newLine, Spans: spans})
	}
	return lines
}

// splitPreserveEOL splits text by eol and preserves the eol on each line, except possibly the last.
func splitPreserveEOL(text, eol string) []string {
	if text == "" {
		return nil
	}
	if eol == "" {
		eol = defaultEOL
	}
	var lines []string
	for {
		idx := strings.Index(text, eol)
		if idx == -1 {
			if text != "" {
				lines = append(lines, text)
			}
			break
		}
		lines = append(lines, text[:idx+len(eol)])
		text = text[idx+len(eol):]
		if text == "" {
			break
		}
	}
	return lines
}

// trimEOL removes a trailing eol from a line if present.
func trimEOL(line, eol string) (string, bool) {
	if eol != "" && strings.HasSuffix(line, eol) {
		return line[:len(line)-len(eol)], true
	}
	return line, false
}

// diffsToSpans converts diffmatchpatch diffs to DiffSpan entries.
func diffsToSpans(diffs []diffmatchpatch.Diff) []DiffSpan {
	// Build initial spans, coalescing adjacent equals to reduce fragmentation:
	var spans []DiffSpan
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if len(spans) > 0 && spans[len(spans)-1].Op == OpEqual {
				spans[len(spans)-1].OldText += d.Text
				spans[len(spans)-1].NewText += d.Text
				continue
			}
			spans = append(spans, DiffSpan{Op: OpEqual, OldText: d.Text, NewText: d.Text})
		case diffmatchpatch.DiffDelete:
			spans = append(spans, DiffSpan{Op: OpDelete, OldText: d.Text})
		case diffmatchpatch.DiffInsert:
			spans = append(spans, DiffSpan{Op: OpInsert, NewText: d.Text})
		}
	}

	if len(spans) == 0 {
		return spans
	}

	// Collapse each run of non-equal spans into a single span:
	var collapsed []DiffSpan
	for i := 0; i < len(spans); {
		if spans[i].Op == OpEqual {
			collapsed = append(collapsed, spans[i])
			i++
			continue
		}
		j := i
		for j < len(spans) && spans[j].Op != OpEqual {
			j++
		}
		if s, ok := mergeSpans(spans[i:j]...); ok {
			collapsed = append(collapsed, s)
		}
		i = j
	}
	spans = collapsed

	// Iteratively merge small equals sandwiched between non-equals:
	const maxSandwichedEqualLen = 8
	for {
		changed := false
		var normalized []DiffSpan
		push := func(s DiffSpan) {
			if n := len(normalized); n > 0 && normalized[n-1].Op != OpEqual && s.Op != OpEqual {
				normalized[n-1], _ = mergeSpans(normalized[n-1], s)
				return
			}
			normalized = append(normalized, s)
		}
		for i := 0; i < len(spans); {
			if i+2 < len(spans) && spans[i].Op != OpEqual && spans[i+1].Op == OpEqual && spans[i+2].Op != OpEqual && len(spans[i+1].OldText) <= maxSandwichedEqualLen {
				s, _ := mergeSpans(spans[i], spans[i+1], spans[i+2])
				push(s)
				changed = true
				i += 3
				continue
			}
			push(spans[i])
			i++
		}
		spans = normalized
		if !changed {
			break
		}
	}
	return spans
}

// mergeSpans concatenates the old and new sides of spans into a single non-equal span. An equal span in the middle contributes to both sides. It returns false
// if the result would be empty.
func mergeSpans(spans ...DiffSpan) (DiffSpan, bool) {
	var oldBuf, newBuf strings.Builder
	for _, s := range spans {
		oldBuf.WriteString(s.OldText)
		newBuf.WriteString(s.NewText)
	}
	op := opFor(oldBuf.Len() > 0, newBuf.Len() > 0)
	if op == OpEqual {
		return DiffSpan{}, false
	}
	return DiffSpan{Op: op, OldText: oldBuf.String(), NewText: newBuf.String()}, true
}
