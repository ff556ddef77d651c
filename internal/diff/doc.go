// Package diff compares a code unit before and after a rewrite.
//
// The core type is Diff: both texts plus an ordered slice of hunks (OpEqual, OpInsert, OpDelete, OpReplace) that concatenate back into each side. Hunks carry
// 0-based line ranges that are contiguous across the slice. A changed hunk breaks down into Lines, and a changed line into Spans, so a renderer can highlight
// the exact characters that moved. '\n' is the only line separator: lines keep their trailing '\n' (the last line may lack one), and spans never contain it.
//
// How changes are grouped into hunks, lines, and spans is up to DiffText and may change; code should depend on the reconstruction invariants only.
//
// Plain line diffs come from DiffText / DiffTextOptions:
//
//	d := diff.DiffText(oldText, newText)
//	fmt.Println(d.RenderUnifiedDiff(false, "old.txt", "new.txt", 3))
//
// Code goes through an Engine, which picks per-language settings (ConfigFor), sets trailing closing delimiters aside before diffing (DiffUnits), and asks
// a registered StructuralDiffer for a syntax-level comparison. Any structural failure degrades to the text strategy; it never fails the diff.
package diff
