package codeunit

import (
	"fmt"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

// CodeUnit is an immutable snapshot of a block or method in some source text: its content, its absolute byte offsets in the source, and (optionally) where
// its body begins and ends.
//
// A CodeUnit is taken once per rewrite attempt and never mutated. Construct with New; the zero value has an empty body at offset 0.
type CodeUnit struct {
	name      string
	lang      detectlang.Lang
	content   string
	start     int
	end       int
	bodyStart int // -1 if unknown
	bodyEnd   int // -1 if unknown
	scope     string
}

// Spec describes a CodeUnit to New. BodyStart/BodyEnd are absolute offsets; set both to -1 if the body is unknown.
type Spec struct {
	Name      string // ex: "computeTotal"
	Lang      detectlang.Lang
	Content   string // full text of the unit, ex: signature + body + closer
	Start     int    // absolute offset of Content in the source
	BodyStart int
	BodyEnd   int
	Scope     string // containing scope, ex: a class name (optional)
}

// New validates s and returns a CodeUnit. It requires 0 <= Start, and body offsets that are either both -1 or satisfy Start <= BodyStart <= BodyEnd <= End, where
// End = Start + len(Content).
func New(s Spec) (CodeUnit, error) {
	if s.Start < 0 {
		return CodeUnit{}, fmt.Errorf("codeunit: negative start %d", s.Start)
	}
	end := s.Start + len(s.Content)
	switch {
	case s.BodyStart == -1 && s.BodyEnd == -1:
	case s.BodyStart == -1 || s.BodyEnd == -1:
		return CodeUnit{}, fmt.Errorf("codeunit: body offsets must both be known or both be -1 (got %d, %d)", s.BodyStart, s.BodyEnd)
	case s.BodyStart < s.Start || s.BodyStart > s.BodyEnd || s.BodyEnd > end:
		return CodeUnit{}, fmt.Errorf("codeunit: body [%d, %d) not within unit [%d, %d)", s.BodyStart, s.BodyEnd, s.Start, end)
	}
	return CodeUnit{
		name:      s.Name,
		lang:      s.Lang,
		content:   s.Content,
		start:     s.Start,
		end:       end,
		bodyStart: s.BodyStart,
		bodyEnd:   s.BodyEnd,
		scope:     s.Scope,
	}, nil
}

// Name returns the configured name, or "code unit" if "" was configured.
func (c CodeUnit) Name() string {
	if c.name == "" {
		return "code unit"
	}
	return c.name
}

func (c CodeUnit) Lang() detectlang.Lang { return c.lang }
func (c CodeUnit) Content() string       { return c.content }
func (c CodeUnit) Start() int            { return c.start }
func (c CodeUnit) End() int              { return c.end }
func (c CodeUnit) Scope() string         { return c.scope }

// BodyStart returns the absolute offset of the body, or -1 if unknown.
func (c CodeUnit) BodyStart() int { return c.bodyStart }

// BodyEnd returns the absolute offset one past the body, or -1 if unknown.
func (c CodeUnit) BodyEnd() int { return c.bodyEnd }

// HasBody reports whether the body bounds are known and distinct from the unit's outer bounds (ie, there is a signature or closer to preserve).
func (c CodeUnit) HasBody() bool {
	if c.bodyStart < 0 || c.bodyEnd < 0 {
		return false
	}
	return c.bodyStart != c.start || c.bodyEnd != c.end
}

// Body returns the body text, or "" and false if the body is unknown.
func (c CodeUnit) Body() (string, bool) {
	if c.bodyStart < 0 || c.bodyEnd < 0 {
		return "", false
	}
	return c.content[c.bodyStart-c.start : c.bodyEnd-c.start], true
}

// QualifiedName returns "Scope.Name", or Name if there is no scope.
func (c CodeUnit) QualifiedName() string {
	if c.scope == "" {
		return c.Name()
	}
	return c.scope + "." + c.Name()
}

// String returns a short description, ex: "Foo.bar (java) [120, 180)".
func (c CodeUnit) String() string {
	return fmt.Sprintf("%s (%s) [%d, %d)", c.QualifiedName(), c.lang, c.start, c.end)
}
