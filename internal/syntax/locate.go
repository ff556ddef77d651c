package syntax

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/region"
)

// ErrNoUnit is returned by Locate when no function or method encloses the offset.
var ErrNoUnit = errors.New("syntax: no code unit at offset")

// Locate returns the innermost function, method, or constructor in src that encloses offset. The unit's body bounds come from region.ExtractBody on its text;
// they are unknown (-1) if extraction fails. Locate tolerates syntax errors elsewhere in src.
func Locate(ctx context.Context, src string, lang detectlang.Lang, offset int) (codeunit.CodeUnit, error) {
	g, ok := grammars[lang]
	if !ok {
		return codeunit.CodeUnit{}, fmt.Errorf("syntax: no grammar for %s", lang)
	}
	if offset < 0 || offset > len(src) {
		return codeunit.CodeUnit{}, fmt.Errorf("syntax: offset %d out of range [0, %d]", offset, len(src))
	}

	p, err := g.parseOnce(ctx, []byte(src))
	if err != nil {
		return codeunit.CodeUnit{}, err
	}
	defer p.close()

	var unit *sitter.Node
	var scopes []*sitter.Node
	var walk func(n *sitter.Node, scope []*sitter.Node)
	walk = func(n *sitter.Node, scope []*sitter.Node) {
		if offset < int(n.StartByte()) || offset >= int(n.EndByte()) {
			return
		}
		if g.unitTypes[n.Type()] {
			unit = n
			scopes = scope
		}
		if g.scopeTypes[n.Type()] {
			scope = append(scope[:len(scope):len(scope)], n)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), scope)
		}
	}
	walk(p.tree.RootNode(), nil)

	if unit == nil {
		return codeunit.CodeUnit{}, fmt.Errorf("%w %d", ErrNoUnit, offset)
	}

	start, end := int(unit.StartByte()), int(unit.EndByte())
	content := src[start:end]

	spec := codeunit.Spec{
		Name:      nodeName(unit, p.src),
		Lang:      lang,
		Content:   content,
		Start:     start,
		BodyStart: -1,
		BodyEnd:   -1,
	}
	if len(scopes) > 0 {
		spec.Scope = nodeName(scopes[len(scopes)-1], p.src)
	}
	if body, err := region.ExtractBody(content, lang); err == nil {
		spec.BodyStart = start + body.Start
		spec.BodyEnd = start + body.End
	}
	return codeunit.New(spec)
}

// OffsetOfLine returns the byte offset of the first non-blank character on 1-based line in src, or an error if src has fewer lines.
func OffsetOfLine(src string, line int) (int, error) {
	if line < 1 {
		return 0, fmt.Errorf("line %d out of range", line)
	}
	cur := 1
	i := 0
	for cur < line {
		nl := strings.IndexByte(src[i:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d out of range (%d lines)", line, cur)
		}
		i += nl + 1
		cur++
	}
	for i < len(src) && (src[i] == ' ' || src[i] == '\t') {
		i++
	}
	return i, nil
}
