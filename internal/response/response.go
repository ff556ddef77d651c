// Package response turns a model's reply into a rewritten code unit and decides whether the rewrite is actionable.
package response

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/region"
)

// Parsed is the result of parsing a model reply.
type Parsed struct {
	// RewrittenBody is the rewritten code unit text extracted from the reply (signature included, when the model kept it).
	RewrittenBody string

	// IsValid is true iff Issues is empty.
	IsValid bool

	// Issues are human-readable reasons the rewrite was rejected.
	Issues []string

	// Confidence in [0, 1] that RewrittenBody is what the model meant to return. 0 if invalid.
	Confidence float64
}

// Parser parses model replies. original is the unit text that was sent to the model.
type Parser interface {
	Parse(responseText string, original string, lang detectlang.Lang) Parsed
}

// ParserFunc adapts a function to a Parser.
type ParserFunc func(responseText string, original string, lang detectlang.Lang) Parsed

func (f ParserFunc) Parse(responseText string, original string, lang detectlang.Lang) Parsed {
	return f(responseText, original, lang)
}

// Confidence penalties.
const (
	confidenceNoFence     = 0.6
	confidenceManyFences  = 0.85
	confidenceTagMismatch = 0.7
)

// MarkdownParser extracts the rewrite from the first suitable fenced code block of a markdown reply. A reply without fences is taken verbatim, but only if a
// body can be located in it (languages without body extraction require a fence).
//
// A block whose info string names lang is preferred, then an untagged block, then the first block. A tag naming another language lowers confidence but does
// not invalidate the rewrite.
type MarkdownParser struct{}

var _ Parser = MarkdownParser{}

func (MarkdownParser) Parse(responseText string, original string, lang detectlang.Lang) Parsed {
	code, fenced, confidence := extractCode(responseText, lang)

	var issues []string
	switch {
	case strings.TrimSpace(code) == "":
		issues = append(issues, "response contains no code")
	case normalize(code) == normalize(original):
		issues = append(issues, "rewrite is identical to the original")
	default:
		if !fenced {
			if reason := notCode(code, lang); reason != "" {
				issues = append(issues, "response is not code: "+reason)
				break
			}
		}
		if err := region.CheckBalance(code, lang); err != nil {
			issues = append(issues, "unbalanced delimiters: "+err.Error())
		}
		if p := findPlaceholder(code, original); p != "" {
			issues = append(issues, "rewrite elides code: "+p)
		}
	}

	out := Parsed{RewrittenBody: code, IsValid: len(issues) == 0, Issues: issues}
	if out.IsValid {
		out.Confidence = confidence
	}
	return out
}

type codeBlock struct {
	info string
	code string
}

// extractCode returns the code in responseText, whether it came from a fenced block, and a confidence for the choice of block.
func extractCode(responseText string, lang detectlang.Lang) (string, bool, float64) {
	blocks := fencedBlocks([]byte(responseText))
	if len(blocks) == 0 {
		return strings.Trim(responseText, "\r\n"), false, confidenceNoFence
	}

	confidence := 1.0
	if len(blocks) > 1 {
		confidence = confidenceManyFences
	}

	for _, b := range blocks {
		if tagLang(b.info) == lang && lang != detectlang.LangUnknown {
			return b.code, true, confidence
		}
	}
	for _, b := range blocks {
		if tagLang(b.info) == detectlang.LangUnknown {
			return b.code, true, confidence
		}
	}
	return blocks[0].code, true, confidence * confidenceTagMismatch
}

// notCode returns why unfenced text is not a code unit of lang, or "" if a body can be located in it.
func notCode(text string, lang detectlang.Lang) string {
	_, err := region.ExtractBody(text, lang)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, region.ErrUnsupported):
		return "no fenced code block"
	default:
		return "no function body found"
	}
}

// fencedBlocks returns the fenced code blocks of src in document order.
func fencedBlocks(src []byte) []codeBlock {
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []codeBlock
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var info string
		if fcb.Info != nil {
			info = string(fcb.Info.Value(src))
		}
		blocks = append(blocks, codeBlock{info: info, code: blockContent(src, fcb)})
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

func blockContent(src []byte, fcb *ast.FencedCodeBlock) string {
	lines := fcb.Lines()
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return strings.TrimRight(buf.String(), "\r\n")
}

// tagLang maps a fence info string ("java", "python title=x.py") to a Lang.
func tagLang(info string) detectlang.Lang {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return detectlang.LangUnknown
	}
	return detectlang.Parse(strings.Trim(fields[0], "{}."))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	// A line consisting only of an ellipsis, optionally inside a comment.
	ellipsisLine = regexp.MustCompile(`^(?://|#|/\*|--)?\s*(?:\.\.\.|…)\s*(?:\*/)?$`)

	// Comments that stand in for omitted code.
	elisionComment = regexp.MustCompile(`(?i)(?://|#|/\*).*\b(?:rest of (?:the )?(?:code|method|function|body|implementation)|(?:existing|remaining|unchanged|same as before|original) (?:code|logic|implementation))\b`)
)

// findPlaceholder returns the first line of code that stands in for elided code, or "". Lines that also appear in original are not placeholders.
func findPlaceholder(code string, original string) string {
	originalLines := make(map[string]bool)
	for _, l := range strings.Split(original, "\n") {
		originalLines[strings.TrimSpace(l)] = true
	}
	for _, l := range strings.Split(code, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || originalLines[l] {
			continue
		}
		if ellipsisLine.MatchString(l) || elisionComment.MatchString(l) {
			return l
		}
	}
	return ""
}
