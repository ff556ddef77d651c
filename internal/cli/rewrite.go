package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/codalotl/coderewrite/internal/apply"
	"github.com/codalotl/coderewrite/internal/config"
	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/diff"
	"github.com/codalotl/coderewrite/internal/document"
	"github.com/codalotl/coderewrite/internal/llmquery"
	"github.com/codalotl/coderewrite/internal/q/health"
	"github.com/codalotl/coderewrite/internal/rewrite"
	"github.com/codalotl/coderewrite/internal/rewriteprompt"
	"github.com/codalotl/coderewrite/internal/simplelogger"
	"github.com/codalotl/coderewrite/internal/syntax"
)

func newRewriteCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewrite <file>",
		Short: "Rewrite the function or method enclosing a line",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			line, _ := flags.GetInt("line")
			if line < 1 {
				return usagef("--line is required and must be at least 1")
			}

			var overrides config.Overrides
			if flags.Lookup("model").Changed {
				model, _ := flags.GetString("model")
				overrides.Model = &model
			}
			if flags.Lookup("timeout").Changed {
				timeout, _ := flags.GetDuration("timeout")
				if timeout <= 0 {
					return usagef("--timeout must be positive")
				}
				overrides.QueryTimeout = &timeout
			}
			if noStructural, _ := flags.GetBool("no-structural"); noStructural {
				structural := false
				overrides.Structural = &structural
			}
			instruction, _ := flags.GetString("instruction")
			yes, _ := flags.GetBool("yes")

			return e.rewrite(cmd, args[0], line, instruction, yes, &overrides)
		},
	}
	cmd.Flags().Int("line", 0, "1-based line inside the function or method to rewrite")
	cmd.Flags().StringP("instruction", "i", "", "what to change (default: improve the code without changing behavior)")
	cmd.Flags().BoolP("yes", "y", false, "apply without asking")
	cmd.Flags().String("model", "", "model name (overrides config)")
	cmd.Flags().Duration("timeout", 0, "model query timeout (overrides config)")
	cmd.Flags().Bool("no-structural", false, "use the text diff strategy only")
	return cmd
}

func (e *env) rewrite(cmd *cobra.Command, path string, line int, instruction string, yes bool, overrides *config.Overrides) error {
	ctx := cmd.Context()
	logger := simplelogger.New("rewrite")

	cfg, err := config.Load(config.LoadOptions{ProjectDir: filepath.Dir(path), Overrides: overrides})
	if err != nil {
		return err
	}

	buf, err := document.LoadFile(path)
	if err != nil {
		return err
	}
	unit, err := locateUnit(ctx, buf.Text(), path, line)
	if err != nil {
		return err
	}

	querier := e.querier
	if querier == nil {
		querier, err = llmquery.NewOpenAI(llmquery.OpenAIConfig{APIKeyEnv: cfg.APIKeyEnv, BaseURL: cfg.BaseURL, Model: cfg.Model, Logger: logger})
		if err != nil {
			return health.WrapHuman(fmt.Sprintf("no API key: set %s", cfg.APIKeyEnv), "create querier", err)
		}
	}

	engine := diff.NewEngine(logger)
	if cfg.Structural {
		syntax.Register(engine)
	}
	dispatcher := document.NewDispatcher()
	defer dispatcher.Close()
	applier := apply.New(buf, formatterFor(cfg, unit.Lang(), path), dispatcher, logger)

	var interrupted atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	stopSignals := make(chan struct{})
	defer func() {
		signal.Stop(sigs)
		close(stopSignals)
	}()
	go func() {
		select {
		case <-sigs:
			interrupted.Store(true)
		case <-stopSignals:
		}
	}()

	// settled receives the first status that needs the CLI's attention: REVIEW or a terminal state.
	settled := make(chan rewrite.Status, 1)
	sink := rewrite.StatusFunc(func(s rewrite.Status) {
		fmt.Fprintf(e.errW, "[%d] %s: %s\n", s.RequestID, s.State, s.Message)
		if (s.State == rewrite.StateReview && s.Err == nil) || s.State.Terminal() {
			select {
			case settled <- s:
			default:
			}
		}
	})

	mgr := rewrite.New(rewrite.Deps{
		Querier:         querier,
		Prompts:         rewriteprompt.Builder{TokenLimit: cfg.PromptTokenLimit},
		Differ:          engine,
		Applier:         applier,
		Status:          sink,
		CancelPredicate: func(rewrite.RequestID) bool { return interrupted.Load() },
		Logger:          logger,
	}, rewrite.Options{
		QueryTimeout: cfg.QueryTimeout,
		PollInterval: cfg.PollInterval,
		Workers:      int64(cfg.Workers),
		Query: llmquery.Options{
			Model:         cfg.Model,
			MaxTokens:     cfg.MaxTokens,
			Temperature:   llmquery.Float(cfg.Temperature),
			StopSequences: cfg.StopSequences,
		},
		DisableStructural: !cfg.Structural,
	})
	defer mgr.Close()

	mgr.Start(unit, instruction)

	var s rewrite.Status
	select {
	case s = <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.State != rewrite.StateReview {
		if s.Err != nil {
			return health.WrapHuman(s.Message, "rewrite did not reach review", s.Err, "state", s.State)
		}
		return fmt.Errorf("rewrite %s", strings.ToLower(s.State.String()))
	}

	review, ok := mgr.Review()
	if !ok {
		return fmt.Errorf("rewrite %s", strings.ToLower(mgr.State().String()))
	}
	fmt.Fprintln(e.out, review.Diff.Render(e.color(), path))
	fmt.Fprintln(e.out, review.Diff.String())

	if !yes && !confirm(e, "Apply? [y/N] ") {
		if err := mgr.Reject(); err != nil {
			return err
		}
		fmt.Fprintln(e.out, "discarded")
		return nil
	}

	out, err := mgr.Accept(ctx)
	if err != nil {
		return err
	}
	if err := buf.Save(); err != nil {
		return err
	}
	if out.FormatErr != nil {
		fmt.Fprintf(e.errW, "warning: could not reformat: %v\n", out.FormatErr)
	}
	fmt.Fprintf(e.out, "applied to %s (%s replacement)\n", path, out.Mode)
	return nil
}

// formatterFor returns the configured formatter command for lang, if any, else the built-in one.
func formatterFor(cfg config.Config, lang detectlang.Lang, path string) document.Reformatter {
	for name, argv := range cfg.Formatters {
		if detectlang.Parse(name) == lang {
			return document.CommandFormatter{Command: argv[0], Args: argv[1:], Dir: filepath.Dir(path)}
		}
	}
	return document.FormatterFor(lang, path)
}

// confirm asks a yes/no question on e.in. Anything other than y/yes is no.
func confirm(e *env, question string) bool {
	fmt.Fprint(e.out, question)
	answer, _ := bufio.NewReader(e.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
