package syntax

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/diff"
)

// Differ compares two versions of a code unit statement by statement. It implements diff.StructuralDiffer.
type Differ struct {
	lang    detectlang.Lang
	grammar grammar
}

// NewDiffer returns a Differ for lang, or an error if lang has no grammar.
func NewDiffer(lang detectlang.Lang) (*Differ, error) {
	g, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("syntax: no grammar for %s", lang)
	}
	return &Differ{lang: lang, grammar: g}, nil
}

// Register registers a Differ with e for every supported language.
func Register(e *diff.Engine) {
	for lang, g := range grammars {
		e.Register(lang, &Differ{lang: lang, grammar: g})
	}
}

// statement is a statement-level node, flattened to what alignment needs.
type statement struct {
	nodeType string
	text     string
	key      string // whitespace-normalized text
	comment  bool
}

// DiffStructure parses oldText and newText, finds the statements of each unit's body (or the top-level statements if the text is not a unit), and aligns them
// by whitespace-normalized text.
func (d *Differ) DiffStructure(ctx context.Context, oldText, newText string) (*diff.Structural, error) {
	oldStmts, err := d.statements(ctx, oldText)
	if err != nil {
		return nil, fmt.Errorf("old text: %w", err)
	}
	newStmts, err := d.statements(ctx, newText)
	if err != nil {
		return nil, fmt.Errorf("new text: %w", err)
	}
	return &diff.Structural{
		Parser:   "tree-sitter/" + string(d.lang),
		OldNodes: len(oldStmts),
		NewNodes: len(newStmts),
		Changes:  alignStatements(oldStmts, newStmts),
	}, nil
}

func (d *Differ) statements(ctx context.Context, text string) ([]statement, error) {
	p, err := d.grammar.parse(ctx, text, true)
	if err != nil {
		return nil, err
	}
	defer p.close()

	root := p.tree.RootNode()
	container := root
	if unit := firstNode(root, d.grammar.unitTypes); unit != nil {
		container = bodyNode(unit)
		if container == nil {
			// A unit without a block body (ex: an expression-bodied function) is one statement.
			return []statement{newStatement(unit, p.src)}, nil
		}
	}

	var out []statement
	for _, n := range statementNodes(container) {
		out = append(out, newStatement(n, p.src))
	}
	return out, nil
}

func newStatement(n *sitter.Node, src []byte) statement {
	text := n.Content(src)
	return statement{
		nodeType: n.Type(),
		text:     text,
		key:      strings.Join(strings.Fields(text), " "),
		comment:  isComment(n),
	}
}

// firstNode returns the first node in preorder whose type is in types.
func firstNode(n *sitter.Node, types map[string]bool) *sitter.Node {
	if types[n.Type()] {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := firstNode(n.NamedChild(i), types); found != nil {
			return found
		}
	}
	return nil
}

// blockTypes are node types that hold a body's statements, directly or through one more container.
var blockTypes = set("block", "statement_block", "function_body", "statements", "statement_list", "compound_statement", "constructor_body")

// bodyNode returns the block holding unit's statements, or nil.
func bodyNode(unit *sitter.Node) *sitter.Node {
	if b := unit.ChildByFieldName("body"); b != nil && blockTypes[b.Type()] {
		return b
	}
	for i := int(unit.NamedChildCount()) - 1; i >= 0; i-- {
		if c := unit.NamedChild(i); blockTypes[c.Type()] {
			return c
		}
	}
	return nil
}

// statementNodes returns the named children of block, descending through single-child containers.
func statementNodes(block *sitter.Node) []*sitter.Node {
	for block.NamedChildCount() == 1 && blockTypes[block.NamedChild(0).Type()] {
		block = block.NamedChild(0)
	}
	nodes := make([]*sitter.Node, 0, block.NamedChildCount())
	for i := 0; i < int(block.NamedChildCount()); i++ {
		nodes = append(nodes, block.NamedChild(i))
	}
	return nodes
}

// alignStatements finds the longest common subsequence of old and new by key. Unmatched statements between two matches are paired positionally as modifications;
// leftovers are additions or removals.
func alignStatements(old, new []statement) []diff.StructuralChange {
	n, m := len(old), len(new)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if old[i].key == new[j].key {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var changes []diff.StructuralChange
	var removed, added []statement
	flush := func() {
		k := min(len(removed), len(added))
		for x := 0; x < k; x++ {
			changes = append(changes, diff.StructuralChange{
				Kind:        diff.ChangeModified,
				NodeType:    added[x].nodeType,
				OldText:     removed[x].text,
				NewText:     added[x].text,
				CommentOnly: removed[x].comment && added[x].comment,
			})
		}
		for _, s := range removed[k:] {
			changes = append(changes, diff.StructuralChange{Kind: diff.ChangeRemoved, NodeType: s.nodeType, OldText: s.text, CommentOnly: s.comment})
		}
		for _, s := range added[k:] {
			changes = append(changes, diff.StructuralChange{Kind: diff.ChangeAdded, NodeType: s.nodeType, NewText: s.text, CommentOnly: s.comment})
		}
		removed, added = nil, nil
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case old[i].key == new[j].key:
			flush()
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			removed = append(removed, old[i])
			i++
		default:
			added = append(added, new[j])
			j++
		}
	}
	removed = append(removed, old[i:]...)
	added = append(added, new[j:]...)
	flush()
	return changes
}
