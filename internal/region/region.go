// Package region locates and carves out sub-regions of code unit text: the body between a unit's delimiters (ExtractBody), and the trailing run of closing
// characters and whitespace that is set aside before diffing (StripTail).
//
// Scanning skips quoted literals and comments: delimiters inside them are never counted, and a backslash consumes exactly one following character.
package region

import (
	"errors"
	"fmt"
	"strings"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

var (
	// ErrNotExtractable is returned when a body region cannot be determined deterministically (no opening delimiter, or delimiters never balance).
	ErrNotExtractable = errors.New("region: body not extractable")

	// ErrUnsupported is returned for languages whose bodies cannot be located by scanning. Callers fall back to whole-unit replacement.
	ErrUnsupported = errors.New("region: body extraction unsupported for language")
)

// Body is a region of some text. Start and End are byte offsets into the scanned text, and Text == text[Start:End].
type Body struct {
	Start int
	End   int
	Text  string
}

// ExtractBody returns the body of the code unit in text:
//   - For brace languages, the content strictly inside the first top-level Open/Close pair (the closing delimiter is excluded).
//   - For colon languages, everything after the first top-level ':' (skipping the line break and indentation that follow it) to the end of text.
//
// An error wrapping ErrNotExtractable or ErrUnsupported is returned otherwise.
func ExtractBody(text string, lang detectlang.Lang) (Body, error) {
	p := detectlang.ProfileFor(lang)
	switch p.BodyStyle {
	case detectlang.BodyStyleBraces:
		return extractDelimited(text, p)
	case detectlang.BodyStyleColon:
		return extractAfterColon(text, p)
	default:
		return Body{}, fmt.Errorf("%w: %s", ErrUnsupported, lang)
	}
}

func extractDelimited(text string, p detectlang.Profile) (Body, error) {
	sc := scanner{profile: p, text: text}
	start := -1
	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.code(i) {
			continue
		}
		switch c {
		case p.Open:
			if start < 0 {
				start = i + 1
			}
			depth++
		case p.Close:
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return Body{Start: start, End: i, Text: text[start:i]}, nil
			}
		}
	}
	if start < 0 {
		return Body{}, fmt.Errorf("%w: no opening %q", ErrNotExtractable, p.Open)
	}
	return Body{}, fmt.Errorf("%w: unbalanced %q (depth %d at end of text)", ErrNotExtractable, p.Open, depth)
}

func extractAfterColon(text string, p detectlang.Profile) (Body, error) {
	sc := scanner{profile: p, text: text}
	depth := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.code(i) {
			continue
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ':':
			if depth > 0 {
				continue
			}
			start := i + 1
			for start < len(text) && isBreakOrIndent(text[start]) {
				start++
			}
			return Body{Start: start, End: len(text), Text: text[start:]}, nil
		}
	}
	return Body{}, fmt.Errorf("%w: no top-level ':'", ErrNotExtractable)
}

// CheckBalance verifies that every (), [], and {} pair in text is balanced and properly nested outside of literals, and that no literal is left open. It returns
// nil if balanced, and otherwise an error describing the first problem and its byte offset.
func CheckBalance(text string, lang detectlang.Lang) error {
	p := detectlang.ProfileFor(lang)
	sc := scanner{profile: p, text: text}
	var stack []byte
	var positions []int
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.code(i) {
			continue
		}
		switch c {
		case '(', '[', '{':
			stack = append(stack, c)
			positions = append(positions, i)
		case ')', ']', '}':
			if len(stack) == 0 {
				return fmt.Errorf("unmatched %q at offset %d", c, i)
			}
			top := stack[len(stack)-1]
			if matching(top) != c {
				return fmt.Errorf("mismatched %q at offset %d (opened with %q at offset %d)", c, i, top, positions[len(positions)-1])
			}
			stack = stack[:len(stack)-1]
			positions = positions[:len(positions)-1]
		}
	}
	if sc.quote != 0 {
		return fmt.Errorf("unterminated %q literal", sc.quote)
	}
	if sc.comment == blockComment {
		return fmt.Errorf("unterminated %s comment", p.BlockCommentOpen)
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q at offset %d", stack[len(stack)-1], positions[len(positions)-1])
	}
	return nil
}

func matching(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return '}'
	}
}

func isBreakOrIndent(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

type commentState int

const (
	noComment commentState = iota
	lineComment
	blockComment
)

// scanner tracks literal and comment state while walking text one byte at a time. Only ASCII bytes are ever interesting, so multi-byte UTF-8 sequences
// pass through untouched.
type scanner struct {
	profile detectlang.Profile
	text    string
	quote   byte         // the quote char that opened the current literal; 0 outside literals
	escaped bool         // the previous byte was an escaping backslash
	comment commentState // the kind of comment being skipped
	skip    int          // remaining bytes of a comment marker already matched
}

// code consumes text[i] and reports whether it is structural code: outside any literal or comment and not escaped. State is updated before the caller looks
// at delimiters. Bytes must be fed in order.
func (s *scanner) code(i int) bool {
	c := s.text[i]
	switch {
	case s.skip > 0:
		s.skip--
		return false
	case s.escaped:
		s.escaped = false
		return false
	case s.comment == lineComment:
		if c == '\n' {
			s.comment = noComment
		}
		return false
	case s.comment == blockComment:
		if s.startsWith(i, s.profile.BlockCommentClose) {
			s.comment = noComment
			s.skip = len(s.profile.BlockCommentClose) - 1
		}
		return false
	case s.quote != 0:
		switch {
		case c == '\\' && !s.profile.IsRawQuote(s.quote):
			s.escaped = true
		case c == s.quote:
			s.quote = 0
		}
		return false
	}

	switch {
	case c == '\\':
		s.escaped = true
		return false
	case s.startsWith(i, s.profile.LineComment):
		s.comment = lineComment
		s.skip = len(s.profile.LineComment) - 1
		return false
	case s.startsWith(i, s.profile.BlockCommentOpen):
		s.comment = blockComment
		s.skip = len(s.profile.BlockCommentOpen) - 1
		return false
	case s.profile.IsQuote(c):
		s.quote = c
		return false
	}
	return true
}

func (s *scanner) startsWith(i int, marker string) bool {
	return marker != "" && strings.HasPrefix(s.text[i:], marker)
}
