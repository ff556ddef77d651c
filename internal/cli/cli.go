package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codalotl/coderewrite/internal/llmquery"
	"github.com/codalotl/coderewrite/internal/q/health"
)

// Version is the coderewrite version. It is a var (not a const) so build tooling can override it (for example via `-ldflags "-X .../internal/cli.Version=1.2.3"`).
var Version = "0.3.0"

// In/Out/Err override standard I/O. If nil, defaults are used. Overriding is useful for testing.
type RunOptions struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Querier replaces the OpenAI querier used by `rewrite`.
	Querier llmquery.Querier
}

// usageError marks errors caused by malformed arguments. Run maps it to exit code 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

// usageArgs wraps a cobra positional-args validator so its failures are usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageError{err: err}
		}
		return nil
	}
}

// env is what every command needs from Run.
type env struct {
	in      io.Reader
	out     io.Writer
	errW    io.Writer
	querier llmquery.Querier
}

// color reports whether output should be colored (stdout is a terminal).
func (e *env) color() bool {
	f, ok := e.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run runs the CLI with args (typically you'd use os.Args).
//
// It returns a recommended exit code (0, 1, or 2) and an error, if any:
//   - 0 -> err == nil
//   - 1 -> err != nil, but the structure of args is sound (flags are correct, etc).
//   - 2 -> err != nil, args parse error or misuse of flags, etc.
//
// Note that in cases of errors, Run has already displayed an error message to opts.Err || Stderr. Callers may use os.Exit with the exit code.
func Run(args []string, opts *RunOptions) (int, error) {
	argv := args
	if len(argv) > 0 {
		argv = argv[1:]
	}

	e := &env{in: os.Stdin, out: os.Stdout, errW: os.Stderr}
	if opts != nil {
		if opts.In != nil {
			e.in = opts.In
		}
		if opts.Out != nil {
			e.out = opts.Out
		}
		if opts.Err != nil {
			e.errW = opts.Err
		}
		e.querier = opts.Querier
	}

	root := newRootCommand(e)
	root.SetArgs(argv)
	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.errW)

	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0, nil
	}

	fmt.Fprintln(e.errW, "Error:", health.HumanMessage(err))

	var ue usageError
	if errors.As(err, &ue) || strings.HasPrefix(err.Error(), "unknown command") {
		fmt.Fprintf(e.errW, "Run '%s --help' for usage.\n", root.Name())
		return 2, err
	}
	return 1, err
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "coderewrite",
		Short:         "Rewrite a function or method with a language model, review the diff, and apply it",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.AddCommand(
		newRewriteCommand(e),
		newDiffCommand(e),
		newExtractCommand(e),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  usageArgs(cobra.NoArgs),
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(e.out, Version)
			},
		},
	)
	return root
}
