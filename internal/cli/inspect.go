package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/diff"
	"github.com/codalotl/coderewrite/internal/q/health"
	"github.com/codalotl/coderewrite/internal/region"
	"github.com/codalotl/coderewrite/internal/simplelogger"
	"github.com/codalotl/coderewrite/internal/syntax"
)

func newDiffCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Diff two files with the language-aware diff engine",
		Args:  usageArgs(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldText, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			newText, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			lang := detectlang.FromPath(args[1])
			if name, _ := cmd.Flags().GetString("lang"); name != "" {
				lang = detectlang.Parse(name)
				if lang == detectlang.LangUnknown {
					return usagef("unknown language %q", name)
				}
			}
			cfg := diff.ConfigFor(lang)
			if cmd.Flags().Lookup("context").Changed {
				n, _ := cmd.Flags().GetInt("context")
				if n < 0 {
					return usagef("--context must be non-negative")
				}
				cfg.ContextLines = n
			}

			engine := diff.NewEngine(simplelogger.New("diff"))
			syntax.Register(engine)
			r := engine.Diff(cmd.Context(), string(oldText), string(newText), cfg)

			fmt.Fprintln(e.out, r.String())
			if r.StructuralErr != nil {
				fmt.Fprintf(e.out, "structural diff unavailable: %v\n", r.StructuralErr)
			}
			if r.Structural != nil {
				for _, c := range r.Structural.Changes {
					fmt.Fprintf(e.out, "  %s %s\n", c.Kind, c.NodeType)
				}
			}
			fmt.Fprintln(e.out, r.Render(e.color(), args[1]))
			return nil
		},
	}
	cmd.Flags().String("lang", "", "language of both files (default: from the new file's extension)")
	cmd.Flags().Int("context", 0, "context lines (default: per language)")
	return cmd
}

func newExtractCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Show the code unit enclosing a line, its body, and its closing tail",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, _ := cmd.Flags().GetInt("line")
			if line < 1 {
				return usagef("--line is required and must be at least 1")
			}
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			unit, err := locateUnit(cmd.Context(), string(src), args[0], line)
			if err != nil {
				return err
			}

			fmt.Fprintf(e.out, "unit:  %s\n", unit)
			fmt.Fprintf(e.out, "range: [%d, %d)\n", unit.Start(), unit.End())
			if body, ok := unit.Body(); ok {
				fmt.Fprintf(e.out, "body:  [%d, %d) %d bytes\n", unit.BodyStart(), unit.BodyEnd(), len(body))
			} else {
				_, err := region.ExtractBody(unit.Content(), unit.Lang())
				fmt.Fprintf(e.out, "body:  unknown (%v)\n", err)
			}
			st := region.StripTailFor(unit.Content(), unit.Lang())
			fmt.Fprintf(e.out, "tail:  %q\n", st.Tail)
			fmt.Fprintln(e.out, "---")
			fmt.Fprintln(e.out, st.Core)
			return nil
		},
	}
	cmd.Flags().Int("line", 0, "1-based line inside the unit")
	return cmd
}

// locateUnit finds the unit enclosing 1-based line of src, with the language taken from path.
func locateUnit(ctx context.Context, src, path string, line int) (codeunit.CodeUnit, error) {
	lang := detectlang.FromPath(path)
	if !detectlang.Known(lang) {
		return codeunit.CodeUnit{}, health.NewHumanErr(fmt.Sprintf("%s: unsupported language (unrecognized file type)", path), "unknown language", "path", path)
	}
	if !syntax.Supported(lang) {
		return codeunit.CodeUnit{}, health.NewHumanErr(fmt.Sprintf("%s: unsupported language %s (supported: %s)", path, lang, langList(syntax.Languages())), "unsupported language", "path", path, "lang", lang)
	}
	offset, err := syntax.OffsetOfLine(src, line)
	if err != nil {
		return codeunit.CodeUnit{}, usageError{err: err}
	}
	unit, err := syntax.Locate(ctx, src, lang, offset)
	if errors.Is(err, syntax.ErrNoUnit) {
		return codeunit.CodeUnit{}, health.NewHumanErr(fmt.Sprintf("%s:%d: no function or method here", path, line), "no unit at line", "path", path, "line", line)
	} else if err != nil {
		return codeunit.CodeUnit{}, err
	}
	return unit, nil
}

func langList(langs []detectlang.Lang) string {
	names := make([]string, len(langs))
	for i, l := range langs {
		names[i] = string(l)
	}
	return strings.Join(names, ", ")
}
