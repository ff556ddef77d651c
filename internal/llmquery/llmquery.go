// Package llmquery is the boundary to the language model: a single prompt in, a single completion out. Providers implement Querier; Mock is a scriptable fake
// for tests.
package llmquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codalotl/coderewrite/internal/q/health"
)

// Options are per-query generation parameters. Zero values mean "provider default".
type Options struct {
	Model         string
	System        string // optional system message
	MaxTokens     int
	Temperature   *float64 // nil means provider default; 0 is sent as 0
	StopSequences []string
}

// Float returns a pointer to f, for Options.Temperature.
func Float(f float64) *float64 { return &f }

// Querier answers a prompt. Implementations must honor ctx cancellation and deadlines. An empty completion is not an error at this layer.
type Querier interface {
	Query(ctx context.Context, prompt string, opts Options) (string, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f QuerierFunc) Query(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// ErrRetryable marks an error as retryable by the caller.
var ErrRetryable = errors.New("llmquery: retryable")

func makeRetryable(err error) error { return fmt.Errorf("%w: %w", ErrRetryable, err) }
func isRetryable(err error) bool    { return errors.Is(err, ErrRetryable) }

// retrySleepDurations' i'th index is the sleep duration for the i'th retry. Any retry after that would use the last value.
//
// This is meant to mix exponential backoff, an eager initial retry, keeping sleep times long enough that things might recover but short enough that the user doesn't
// think things hung.
var retrySleepDurations = []time.Duration{
	10 * time.Millisecond,
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
}

const retryMaxAttempts = 3

// withRetry calls send up to retryMaxAttempts times while it returns retryable errors, sleeping between attempts. Sleeps end early if ctx is done.
func withRetry(ctx context.Context, hc health.Ctx, sleeps []time.Duration, send func(context.Context) (string, error)) (string, error) {
	var text string
	var err error
	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		text, err = send(ctx)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) || attempt == retryMaxAttempts || len(sleeps) == 0 {
			break
		}

		sleep := sleeps[min(attempt-1, len(sleeps)-1)]
		hc.Log("llmquery.retry", "attempt", attempt, "max", retryMaxAttempts, "sleep", sleep, "err", err.Error())
		if serr := sleepCtx(ctx, sleep); serr != nil {
			return "", serr
		}
	}
	return "", err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
