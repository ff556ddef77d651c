package diff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/q/health"
	"github.com/codalotl/coderewrite/internal/region"
)

// Strategy names how an EnhancedDiff was produced.
type Strategy string

const (
	StrategyText   Strategy = "text"   // line diff only
	StrategyHybrid Strategy = "hybrid" // line diff plus a structural comparison
)

// ErrNoStructural is returned by Engine.Structural when no StructuralDiffer is registered for a language.
var ErrNoStructural = errors.New("diff: no structural differ for language")

// Config controls Engine.Diff. Use ConfigFor to get language defaults.
type Config struct {
	Lang             detectlang.Lang
	IgnoreWhitespace bool // ignored for whitespace-sensitive languages
	ContextLines     int  // context lines when rendering
	PreferStructural bool // attempt a structural diff when a differ is registered for Lang
}

// ConfigFor returns the default Config for lang.
func ConfigFor(lang detectlang.Lang) Config {
	p := detectlang.ProfileFor(lang)
	return Config{
		Lang:             lang,
		IgnoreWhitespace: !p.WhitespaceSensitive,
		ContextLines:     p.ContextLines,
		PreferStructural: p.PreferStructural,
	}
}

// ChangeKind classifies a StructuralChange.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// StructuralChange is one difference found by comparing syntax trees.
type StructuralChange struct {
	Kind        ChangeKind
	NodeType    string // grammar node type, ex: "if_statement"
	OldText     string // empty for ChangeAdded
	NewText     string // empty for ChangeRemoved
	CommentOnly bool   // both sides are comments
}

// Structural is the result of a structural comparison.
type Structural struct {
	Parser   string // ex: "tree-sitter/java"
	OldNodes int    // statement-level nodes compared on the old side
	NewNodes int
	Changes  []StructuralChange
}

// StructuralDiffer compares two texts of one language by syntax. Implementations may fail (ex: the text does not parse); Engine falls back to the text strategy.
type StructuralDiffer interface {
	DiffStructure(ctx context.Context, oldText, newText string) (*Structural, error)
}

// StructuralDifferFunc adapts a function to StructuralDiffer.
type StructuralDifferFunc func(ctx context.Context, oldText, newText string) (*Structural, error)

func (f StructuralDifferFunc) DiffStructure(ctx context.Context, oldText, newText string) (*Structural, error) {
	return f(ctx, oldText, newText)
}

// Summary is a short description of the significance of an EnhancedDiff.
type Summary struct {
	SemanticChanges int  // structural changes if hybrid, else change hunks
	HasLogicChanges bool // false when every change is whitespace or comments
}

// EnhancedDiff is a text Diff plus optional structural analysis.
type EnhancedDiff struct {
	Diff       Diff
	Stats      Stats
	Structural *Structural // nil unless Strategy == StrategyHybrid
	Strategy   Strategy
	Summary    Summary
	Config     Config // effective config

	// StructuralErr explains why a requested structural diff was not used. It is nil if none was requested, or it succeeded.
	StructuralErr error

	// OldTail and NewTail are the trailing closing characters and whitespace set aside by Engine.DiffUnits. Hunks never cover them; Diff.OldText+OldTail is the
	// full old unit.
	OldTail string
	NewTail string
}

// HasChanges reports whether there are any non-whitespace changes.
func (r EnhancedDiff) HasChanges() bool {
	return r.Stats.Changes() > 0
}

// OldFull returns the full old text, including any tail.
func (r EnhancedDiff) OldFull() string {
	return r.Diff.OldText + r.OldTail
}

// NewFull returns the full new text, including any tail.
func (r EnhancedDiff) NewFull() string {
	return r.Diff.NewText + r.NewTail
}

// Render returns a unified diff using the configured context lines.
func (r EnhancedDiff) Render(color bool, name string) string {
	return r.Diff.RenderUnifiedDiff(color, name, name, r.Config.ContextLines)
}

// String returns a one-line description, ex: "hybrid: 2 changes, +3 -1".
func (r EnhancedDiff) String() string {
	s := fmt.Sprintf("%s: %s", r.Strategy, r.Stats)
	if r.Structural != nil {
		s += fmt.Sprintf("; %d structural", len(r.Structural.Changes))
	}
	if !r.Summary.HasLogicChanges && r.Summary.SemanticChanges > 0 {
		s += " (comments only)"
	}
	return s
}

// Engine computes EnhancedDiffs. Structural differs are registered per language; all other languages use the text strategy. An Engine is safe for concurrent
// use.
type Engine struct {
	health.Ctx

	mu      sync.RWMutex
	differs map[detectlang.Lang]StructuralDiffer
}

// NewEngine returns an Engine with no structural differs. logger may be nil.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{Ctx: health.NewCtx(logger), differs: make(map[detectlang.Lang]StructuralDiffer)}
}

// Register sets the structural differ for lang. A nil differ removes it.
func (e *Engine) Register(lang detectlang.Lang, d StructuralDiffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d == nil {
		delete(e.differs, lang)
		return
	}
	e.differs[lang] = d
}

// HasStructural reports whether a structural differ is registered for lang.
func (e *Engine) HasStructural(lang detectlang.Lang) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.differs[lang]
	return ok
}

// Diff computes an EnhancedDiff of oldText and newText. It never fails: if the structural strategy fails or panics, the result is the text strategy and StructuralErr
// records why.
func (e *Engine) Diff(ctx context.Context, oldText, newText string, cfg Config) EnhancedDiff {
	return e.diff(ctx, oldText, newText, oldText, newText, cfg)
}

// DiffUnits diffs two code unit texts. The trailing closing characters and whitespace of each are stripped before the line diff so that a change in trailing
// punctuation does not show up as a change to the last line; the stripped tails are returned in OldTail/NewTail. The structural strategy sees the full texts.
func (e *Engine) DiffUnits(ctx context.Context, oldUnit, newUnit string, cfg Config) EnhancedDiff {
	closing := detectlang.ProfileFor(cfg.Lang).ClosingChars
	so := region.StripTail(oldUnit, closing)
	sn := region.StripTail(newUnit, closing)
	r := e.diff(ctx, so.Core, sn.Core, oldUnit, newUnit, cfg)
	r.OldTail = so.Tail
	r.NewTail = sn.Tail
	return r
}

func (e *Engine) diff(ctx context.Context, oldText, newText, oldFull, newFull string, cfg Config) EnhancedDiff {
	if detectlang.ProfileFor(cfg.Lang).WhitespaceSensitive {
		cfg.IgnoreWhitespace = false
	}
	d := DiffTextOptions(oldText, newText, TextOptions{IgnoreWhitespace: cfg.IgnoreWhitespace})
	r := EnhancedDiff{Diff: d, Stats: d.Stats(), Strategy: StrategyText, Config: cfg}

	if cfg.PreferStructural && r.HasChanges() {
		s, err := e.Structural(ctx, cfg.Lang, oldFull, newFull)
		switch {
		case err == nil:
			r.Structural = s
			r.Strategy = StrategyHybrid
		case errors.Is(err, ErrNoStructural):
			e.Debug("structural diff unavailable", "lang", cfg.Lang)
		default:
			r.StructuralErr = err
			e.Log("structural diff failed; using text strategy", "lang", cfg.Lang, "err", err)
		}
	}

	r.Summary = summarize(r)
	return r
}

// Structural runs the registered structural differ for lang. Panics in the differ are recovered and returned as errors.
func (e *Engine) Structural(ctx context.Context, lang detectlang.Lang, oldText, newText string) (s *Structural, err error) {
	e.mu.RLock()
	differ, ok := e.differs[lang]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStructural, lang)
	}

	defer func() {
		if rec := recover(); rec != nil {
			s = nil
			err = fmt.Errorf("structural diff panicked: %v", rec)
		}
	}()

	s, err = differ.DiffStructure(ctx, oldText, newText)
	if err == nil && s == nil {
		err = errors.New("structural diff returned no result")
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func summarize(r EnhancedDiff) Summary {
	if r.Structural == nil {
		return Summary{SemanticChanges: r.Stats.Changes(), HasLogicChanges: r.Stats.Changes() > 0}
	}
	sum := Summary{SemanticChanges: len(r.Structural.Changes)}
	for _, c := range r.Structural.Changes {
		if !c.CommentOnly {
			sum.HasLogicChanges = true
			break
		}
	}
	return sum
}
