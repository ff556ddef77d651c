// Package rewriteprompt builds the prompt sent to the model for a rewrite.
package rewriteprompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/tiktoken-go/tokenizer"

	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/q/health"
)

var (
	//go:embed fragments/system.md
	systemFragment string

	//go:embed fragments/rewrite.md
	rewriteFragment string
)

var rewriteTemplate = template.Must(template.New("rewrite").Option("missingkey=zero").Parse(rewriteFragment))

// DefaultTokenLimit bounds System()+Build() output when Builder.TokenLimit is 0.
const DefaultTokenLimit = 16_000

// Builder builds prompts. The zero value is ready to use.
type Builder struct {
	// TokenLimit bounds the combined size of the system and user prompts (o200k_base tokens). Negative disables the check.
	TokenLimit int

	// Template overrides the embedded user prompt template. It is executed with a templateData.
	Template *template.Template
}

type templateData struct {
	Language    string
	Fence       string // info string for fenced code blocks
	Name        string
	Scope       string
	Instruction string
	Content     string
	Body        string
}

// System returns the system message.
func (b Builder) System() string {
	return strings.TrimSpace(systemFragment)
}

// Build renders the user prompt for rewriting unit per instruction (which may be empty). It fails with a health.KindProvider error if the prompt exceeds the
// token limit.
func (b Builder) Build(unit codeunit.CodeUnit, instruction string) (string, error) {
	data := templateData{
		Language:    languageName(unit.Lang()),
		Fence:       string(unit.Lang()),
		Name:        unit.Name(),
		Scope:       unit.Scope(),
		Instruction: strings.TrimSpace(instruction),
		Content:     unit.Content(),
	}
	if unit.HasBody() {
		data.Body, _ = unit.Body()
	}

	tmpl := b.Template
	if tmpl == nil {
		tmpl = rewriteTemplate
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", health.WrapKind(health.KindProvider, "render prompt", err)
	}
	prompt := sb.String()

	limit := b.TokenLimit
	if limit == 0 {
		limit = DefaultTokenLimit
	}
	if limit > 0 {
		n := CountTokens(b.System()) + CountTokens(prompt)
		if n > limit {
			return "", health.NewKindErr(health.KindProvider, "prompt exceeds token limit", "tokens", n, "limit", limit)
		}
	}
	return prompt, nil
}

// CountTokens returns the o200k_base token count of text, or an estimate if the tokenizer fails.
func CountTokens(text string) int {
	enc, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		panic(fmt.Errorf("invalid encoder: %v", tokenizer.O200kBase))
	}
	count, err := enc.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

func languageName(l detectlang.Lang) string {
	switch l {
	case detectlang.LangUnknown:
		return "source"
	case detectlang.LangGo:
		return "Go"
	case detectlang.LangJava:
		return "Java"
	case detectlang.LangKotlin:
		return "Kotlin"
	case detectlang.LangPython:
		return "Python"
	case detectlang.LangJavaScript:
		return "JavaScript"
	case detectlang.LangTypeScript:
		return "TypeScript"
	default:
		return l.String()
	}
}
