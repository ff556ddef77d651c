package rewrite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/diff"
	"github.com/codalotl/coderewrite/internal/q/health"
)

// run drives request id from PENDING to REVIEW (or FAILED). Each stage ends with a transition; if the transition reports that id is no longer in flight,
// run returns without further effects.
func (m *Manager) run(ctx context.Context, id RequestID, unit codeunit.CodeUnit, instruction string, opts Options) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			err := m.LogNewErr("rewrite pipeline panicked", "request", id, "panic", fmt.Sprint(r))
			m.fail(id, "internal error", err)
		}
	}()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)

	prompt, err := m.deps.Prompts.Build(unit, instruction)
	if err != nil {
		if health.KindOf(err) == health.KindNone {
			err = health.WrapKind(health.KindProvider, "build prompt", err)
		}
		m.fail(id, "could not build prompt: "+err.Error(), err)
		return
	}
	if ctx.Err() != nil || !m.transition(id, StateQuerying, "querying model", nil, nil) {
		return
	}

	text, err := m.query(ctx, id, prompt, opts)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled or superseded; the canceller made the transition
		}
		m.fail(id, failureMessage(err, opts), err)
		return
	}
	if ctx.Err() != nil || !m.transition(id, StateParsing, "parsing response", nil, nil) {
		return
	}

	parsed := m.deps.Parser.Parse(text, unit.Content(), unit.Lang())
	if !parsed.IsValid {
		err := health.NewKindErr(health.KindValidation, "invalid rewrite", "issues", parsed.Issues)
		m.Log("rewrite rejected by validation", "request", id, "issues", parsed.Issues)
		m.fail(id, "rewrite rejected: "+strings.Join(parsed.Issues, "; "), err)
		return
	}
	if ctx.Err() != nil || !m.transition(id, StateDiffing, "computing diff", nil, nil) {
		return
	}

	cfg := diff.ConfigFor(unit.Lang())
	if opts.DisableStructural {
		cfg.PreferStructural = false
	}
	d := m.deps.Differ.DiffUnits(ctx, unit.Content(), parsed.RewrittenBody, cfg)
	if ctx.Err() != nil {
		return
	}

	m.setReview(id, &Review{
		RequestID: id,
		Unit:      unit,
		Rewritten: parsed.RewrittenBody,
		Parsed:    parsed,
		Diff:      d,
	})
}

// query asks the model under opts.QueryTimeout. A deadline, or an empty or "null" reply, is a health.KindTimeout error.
func (m *Manager) query(ctx context.Context, id RequestID, prompt string, opts Options) (string, error) {
	qopts := opts.Query
	if qopts.System == "" {
		qopts.System = m.deps.Prompts.System()
	}

	qctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	text, err := m.deps.Querier.Query(qctx, prompt, qopts)
	m.metrics.queryDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return "", m.LogKindErr(health.KindTimeout, "model query timed out", err, "request", id, "timeout", opts.QueryTimeout)
		}
		if health.KindOf(err) == health.KindNone {
			err = health.WrapKind(health.KindProvider, "model query", err)
		}
		m.Log("model query failed", "request", id, "err", err)
		return "", err
	}
	if t := strings.TrimSpace(text); t == "" || t == "null" {
		return "", m.LogKindErr(health.KindTimeout, "model returned no response", nil, "request", id)
	}
	return text, nil
}

func failureMessage(err error, opts Options) string {
	switch health.KindOf(err) {
	case health.KindTimeout:
		return fmt.Sprintf("the model did not respond in time (%s); try again", opts.QueryTimeout)
	default:
		return "rewrite failed: " + err.Error()
	}
}

func (m *Manager) fail(id RequestID, msg string, err error) {
	m.transition(id, StateFailed, msg, err, err)
}

// monitor polls CancelPredicate until request id ends, cancelling it when the predicate turns true.
func (m *Manager) monitor(ctx context.Context, id RequestID, interval time.Duration) {
	defer m.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if m.deps.CancelPredicate(id) {
				if m.cancelRequest(id, "cancelled") {
					m.Log("rewrite cancelled by predicate", "request", id)
				}
				return
			}
		}
	}
}
