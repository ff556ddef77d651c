// Package apply writes an accepted rewrite back into a document.
//
// When the code unit's body bounds are known, only the body is replaced: the body of the rewritten text is extracted and swapped in, leaving the original
// signature and closing delimiter untouched. If the body cannot be isolated, the whole unit is replaced with the rewritten text verbatim. After either, the
// touched span is reformatted on a best-effort basis.
package apply

import (
	"context"
	"log/slog"
	"strings"

	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/document"
	"github.com/codalotl/coderewrite/internal/q/health"
	"github.com/codalotl/coderewrite/internal/region"
)

// Mode is how a rewrite was applied.
type Mode string

const (
	ModeBody  Mode = "body"  // only the body span was replaced
	ModeWhole Mode = "whole" // the entire unit span was replaced
)

// Outcome describes an applied rewrite.
type Outcome struct {
	Mode Mode

	// Start and End bound the inserted text in the document, as of immediately after the replacement (before reformatting).
	Start int
	End   int

	// FormatErr is the reformatter's error, if any. The replacement stands regardless.
	FormatErr error
}

// Applier applies rewrites to one document.
type Applier struct {
	health.Ctx
	doc         document.Document
	reformatter document.Reformatter
	dispatcher  *document.Dispatcher
}

// New returns an Applier editing doc. reformatter may be nil (no reformatting). dispatcher may be nil, in which case edits run on the caller's goroutine.
func New(doc document.Document, reformatter document.Reformatter, dispatcher *document.Dispatcher, logger *slog.Logger) *Applier {
	if reformatter == nil {
		reformatter = document.NopFormatter{}
	}
	return &Applier{
		Ctx:         health.NewCtx(logger),
		doc:         doc,
		reformatter: reformatter,
		dispatcher:  dispatcher,
	}
}

// plan is a single replacement and the span to reformat afterwards.
type plan struct {
	mode        Mode
	start, end  int // replaced span in the current document
	text        string
	formatStart int
	formatEnd   int
}

// Apply replaces unit in the document with rewritten. unit must be the snapshot the rewrite was made from; if the document no longer holds unit's content at
// unit's offsets, nothing is written and a health.KindApply error is returned. Failures to write are also health.KindApply errors.
func (a *Applier) Apply(ctx context.Context, unit codeunit.CodeUnit, rewritten string) (Outcome, error) {
	p := a.plan(unit, rewritten)

	err := a.dispatcher.Do(ctx, func() error {
		return a.replace(unit, p)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, health.WrapKind(health.KindCancelled, "apply cancelled", err, "unit", unit.String())
		}
		return Outcome{}, a.LogKindErr(health.KindApply, "apply rewrite", err, "unit", unit.String(), "mode", string(p.mode))
	}

	out := Outcome{Mode: p.mode, Start: p.start, End: p.start + len(p.text)}
	out.FormatErr = a.dispatcher.Do(ctx, func() error {
		return a.reformatter.Reformat(ctx, a.doc, p.formatStart, p.formatEnd)
	})
	if out.FormatErr != nil {
		a.Log("reformat failed; keeping unformatted text", "unit", unit.String(), "err", out.FormatErr)
	}
	a.Debug("applied rewrite", "unit", unit.String(), "mode", string(p.mode), "start", out.Start, "end", out.End)
	return out, nil
}

// plan decides between body and whole-unit replacement.
func (a *Applier) plan(unit codeunit.CodeUnit, rewritten string) plan {
	whole := plan{
		mode:        ModeWhole,
		start:       unit.Start(),
		end:         unit.End(),
		text:        rewritten,
		formatStart: unit.Start(),
		formatEnd:   unit.Start() + len(rewritten),
	}
	if !unit.HasBody() {
		return whole
	}

	body, err := region.ExtractBody(rewritten, unit.Lang())
	if err != nil {
		a.Log("body not extractable; replacing whole unit", "unit", unit.String(), "kind", string(health.KindExtraction), "err", err)
		return whole
	}
	if after := afterCloser(rewritten, body); strings.TrimSpace(after) != "" {
		a.Log("text after body closer; replacing whole unit", "unit", unit.String(), "kind", string(health.KindExtraction), "after", after)
		return whole
	}

	tail := unit.End() - unit.BodyEnd()
	return plan{
		mode:        ModeBody,
		start:       unit.BodyStart(),
		end:         unit.BodyEnd(),
		text:        body.Text,
		formatStart: unit.Start(),
		formatEnd:   unit.BodyStart() + len(body.Text) + tail,
	}
}

// afterCloser returns the text of rewritten following the delimiter that closes body ("" for bodies that run to the end of the text).
func afterCloser(rewritten string, body region.Body) string {
	if body.End >= len(rewritten) {
		return ""
	}
	return rewritten[body.End+1:]
}

// replace checks the snapshot and performs p, atomically when the document supports transactions.
func (a *Applier) replace(unit codeunit.CodeUnit, p plan) error {
	edit := func(doc document.Document) error {
		if err := checkSnapshot(doc.Text(), unit); err != nil {
			return err
		}
		return doc.ReplaceRange(p.start, p.end, p.text)
	}
	if tx, ok := a.doc.(document.Transactional); ok {
		return tx.WriteTx(edit)
	}
	return edit(a.doc)
}

func checkSnapshot(text string, unit codeunit.CodeUnit) error {
	if unit.End() > len(text) || text[unit.Start():unit.End()] != unit.Content() {
		return health.NewKindErr(health.KindApply, "document changed since snapshot", "unit", unit.String())
	}
	return nil
}
