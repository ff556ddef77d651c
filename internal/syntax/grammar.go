// Package syntax parses code units with tree-sitter. It provides a structural differ for the diff engine (statement-level comparison of two versions of a unit)
// and Locate, which finds the function or method enclosing a source offset.
package syntax

import (
	"context"
	"fmt"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

// grammar is what this package knows about one language's tree-sitter grammar.
type grammar struct {
	language *sitter.Language

	// unitTypes are node types that are rewritable code units.
	unitTypes map[string]bool

	// scopeTypes are node types whose name becomes a unit's scope.
	scopeTypes map[string]bool

	// wrapPrefix/wrapSuffix form a container for fragments that do not parse on their own (ex: a Java method outside a class). Empty if none.
	wrapPrefix string
	wrapSuffix string
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var jsUnits = set("function_declaration", "generator_function_declaration", "method_definition", "function", "function_expression", "arrow_function")

var grammars = map[detectlang.Lang]grammar{
	detectlang.LangGo: {
		language:   golang.GetLanguage(),
		unitTypes:  set("function_declaration", "method_declaration", "func_literal"),
		wrapPrefix: "package unit\n",
		wrapSuffix: "\n",
	},
	detectlang.LangJava: {
		language:   java.GetLanguage(),
		unitTypes:  set("method_declaration", "constructor_declaration", "compact_constructor_declaration"),
		scopeTypes: set("class_declaration", "interface_declaration", "enum_declaration", "record_declaration"),
		wrapPrefix: "class __Unit {\n",
		wrapSuffix: "\n}\n",
	},
	detectlang.LangKotlin: {
		language:   kotlin.GetLanguage(),
		unitTypes:  set("function_declaration", "secondary_constructor", "anonymous_initializer"),
		scopeTypes: set("class_declaration", "object_declaration"),
		wrapPrefix: "class __Unit {\n",
		wrapSuffix: "\n}\n",
	},
	detectlang.LangJavaScript: {
		language:   javascript.GetLanguage(),
		unitTypes:  jsUnits,
		scopeTypes: set("class_declaration", "class"),
		wrapPrefix: "class __Unit {\n",
		wrapSuffix: "\n}\n",
	},
	detectlang.LangTypeScript: {
		language:   typescript.GetLanguage(),
		unitTypes:  jsUnits,
		scopeTypes: set("class_declaration", "class", "abstract_class_declaration"),
		wrapPrefix: "class __Unit {\n",
		wrapSuffix: "\n}\n",
	},
	detectlang.LangPython: {
		language:   python.GetLanguage(),
		unitTypes:  set("function_definition"),
		scopeTypes: set("class_definition"),
	},
}

// Supported reports whether lang has a tree-sitter grammar in this package.
func Supported(lang detectlang.Lang) bool {
	_, ok := grammars[lang]
	return ok
}

// Languages returns the supported languages, sorted.
func Languages() []detectlang.Lang {
	langs := make([]detectlang.Lang, 0, len(grammars))
	for l := range grammars {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	return langs
}

// parsed is a parse result. tree must be closed.
type parsed struct {
	tree *sitter.Tree
	src  []byte // the parsed bytes, including any container
}

func (p parsed) close() {
	p.tree.Close()
}

// parse parses text with g, retrying inside g's container if the bare text has syntax errors. It is an error if text does not parse cleanly either way.
func (g grammar) parse(ctx context.Context, text string, allowWrap bool) (parsed, error) {
	p, err := g.parseOnce(ctx, []byte(text))
	if err != nil {
		return parsed{}, err
	}
	if !p.tree.RootNode().HasError() {
		return p, nil
	}
	p.close()

	if !allowWrap || g.wrapPrefix == "" {
		return parsed{}, fmt.Errorf("syntax errors in text")
	}

	wrapped, err := g.parseOnce(ctx, []byte(g.wrapPrefix+text+g.wrapSuffix))
	if err != nil {
		return parsed{}, err
	}
	if wrapped.tree.RootNode().HasError() {
		wrapped.close()
		return parsed{}, fmt.Errorf("syntax errors in text")
	}
	return wrapped, nil
}

func (g grammar) parseOnce(ctx context.Context, src []byte) (parsed, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(g.language)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return parsed{}, fmt.Errorf("parse: %w", err)
	}
	return parsed{tree: tree, src: src}, nil
}

// nodeName returns the name of a unit or scope node, or "".
func nodeName(n *sitter.Node, src []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(src)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "simple_identifier", "type_identifier", "identifier":
			return c.Content(src)
		}
	}
	return ""
}

func isComment(n *sitter.Node) bool {
	return strings.Contains(n.Type(), "comment")
}
