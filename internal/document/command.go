package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandFormatter pipes the whole document through an external formatter that reads source on stdin and writes the formatted source to stdout (ex: `black
// -q -`, `prettier --stdin-filepath x.ts`). A non-zero exit leaves the document unchanged.
type CommandFormatter struct {
	Command string
	Args    []string
	Dir     string        // working directory; empty means the current one
	Timeout time.Duration // 0 means 10s
}

const defaultFormatTimeout = 10 * time.Second

func (f CommandFormatter) Reformat(ctx context.Context, doc Document, start, end int) error {
	if f.Command == "" {
		return errors.New("document: formatter command is empty")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFormatTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	src := doc.Text()
	cmd := exec.CommandContext(ctx, f.Command, f.Args...)
	cmd.Dir = f.Dir
	cmd.Stdin = strings.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("document: %s: %w", f.Command, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("document: %s: %w", f.Command, err)
		}
		return fmt.Errorf("document: %s: %w: %s", f.Command, err, msg)
	}

	out := stdout.String()
	if out == "" && src != "" {
		return fmt.Errorf("document: %s produced no output", f.Command)
	}
	if out == src {
		return nil
	}
	return doc.ReplaceRange(0, len(src), out)
}
