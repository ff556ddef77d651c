package rewrite

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codalotl/coderewrite/internal/apply"
	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/detectlang"
	"github.com/codalotl/coderewrite/internal/diff"
	"github.com/codalotl/coderewrite/internal/document"
	"github.com/codalotl/coderewrite/internal/llmquery"
	"github.com/codalotl/coderewrite/internal/q/health"
)

const (
	testSource   = "class A {\n  int f() {\n    int x = 1;\n    return x;\n  }\n}\n"
	testUnitText = "int f() {\n    int x = 1;\n    return x;\n  }"
	testRewrite  = "int f() {\n    int x = 2; // fixed\n    return x;\n  }"
)

func fenced(code string) string {
	return "Sure:\n\n```java\n" + code + "\n```\n"
}

func testUnit(t *testing.T) codeunit.CodeUnit {
	t.Helper()
	start := 12
	require.Equal(t, testUnitText, testSource[start:start+len(testUnitText)])
	u, err := codeunit.New(codeunit.Spec{
		Name:      "f",
		Lang:      detectlang.LangJava,
		Content:   testUnitText,
		Start:     start,
		BodyStart: start + len("int f() {"),
		BodyEnd:   start + len(testUnitText) - 1,
		Scope:     "A",
	})
	require.NoError(t, err)
	return u
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) Status(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *statusRecorder) states(id RequestID) []State {
	var out []State
	for _, s := range r.all() {
		if s.RequestID == id {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *statusRecorder) last(id RequestID) Status {
	var last Status
	for _, s := range r.all() {
		if s.RequestID == id {
			last = s
		}
	}
	return last
}

type fakeApplier struct {
	mu    sync.Mutex
	errs  []error // popped per call; nil entries succeed
	calls []string
}

func (f *fakeApplier) Apply(ctx context.Context, unit codeunit.CodeUnit, rewritten string) (apply.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rewritten)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return apply.Outcome{}, err
		}
	}
	return apply.Outcome{Mode: apply.ModeBody, Start: unit.BodyStart(), End: unit.BodyStart() + len(rewritten)}, nil
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, 2*time.Second, time.Millisecond, "want state %s, have %s", want, m.State())
}

func TestManager_HappyPath(t *testing.T) {
	rec := &statusRecorder{}
	reg := prometheus.NewRegistry()
	q := llmquery.NewMockText(fenced(testRewrite))
	applier := &fakeApplier{}

	m := New(Deps{Querier: q, Applier: applier, Status: rec, Registerer: reg}, Options{})
	assert.Equal(t, StateIdle, m.State())
	assert.NotEmpty(t, m.SessionID())

	unit := testUnit(t)
	id := m.Start(unit, "fix x")
	assert.Equal(t, RequestID(1), id)
	assert.True(t, m.IsActive())

	waitState(t, m, StateReview)
	r, ok := m.Review()
	require.True(t, ok)
	assert.Equal(t, id, r.RequestID)
	assert.Equal(t, testRewrite, r.Rewritten)
	assert.True(t, r.Diff.HasChanges())
	assert.Equal(t, diff.StrategyText, r.Diff.Strategy)
	assert.Equal(t, 1, r.Diff.Stats.Replaces)

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, StateReview, cur.State)
	assert.Equal(t, "fix x", cur.Instruction)

	out, err := m.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, apply.ModeBody, out.Mode)
	assert.Equal(t, []string{testRewrite}, applier.calls)
	assert.False(t, m.IsActive())
	assert.Equal(t, StateApplied, m.State())
	lastID, lastState := m.Last()
	assert.Equal(t, id, lastID)
	assert.Equal(t, StateApplied, lastState)

	_, ok = m.Review()
	assert.False(t, ok)
	_, ok = m.Current()
	assert.False(t, ok)

	m.Close()
	assert.Equal(t, []State{StatePending, StateQuerying, StateParsing, StateDiffing, StateReview, StateApplied}, rec.states(id))

	prompts := q.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "fix x")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.started))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.finished.WithLabelValues("APPLIED")))
	n, err := testutil.GatherAndCount(reg, "coderewrite_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_AcceptWritesDocument(t *testing.T) {
	doc := document.NewBuffer(testSource)
	m := New(Deps{
		Querier: llmquery.NewMockText(fenced(testRewrite)),
		Applier: apply.New(doc, nil, nil, nil),
	}, Options{})
	defer m.Close()

	m.Start(testUnit(t), "")
	waitState(t, m, StateReview)

	out, err := m.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, apply.ModeBody, out.Mode)
	assert.Equal(t, "class A {\n  int f() {\n    int x = 2; // fixed\n    return x;\n  }\n}\n", doc.Text())
	assert.Equal(t, StateApplied, m.State())
}

func TestManager_Failures(t *testing.T) {
	tests := []struct {
		name    string
		querier llmquery.Querier
		timeout time.Duration
		kind    health.Kind
		message string
	}{
		{
			name:    "timeout",
			querier: &llmquery.Mock{Delay: 5 * time.Second, Fallback: func(context.Context, string, llmquery.Options) (string, error) { return fenced(testRewrite), nil }},
			timeout: 20 * time.Millisecond,
			kind:    health.KindTimeout,
			message: "did not respond in time",
		},
		{
			name:    "empty response",
			querier: llmquery.NewMockText("  \n"),
			kind:    health.KindTimeout,
			message: "did not respond in time",
		},
		{
			name:    "null response",
			querier: llmquery.NewMockText("null"),
			kind:    health.KindTimeout,
			message: "did not respond in time",
		},
		{
			name:    "unchanged rewrite",
			querier: llmquery.NewMockText(fenced(testUnitText)),
			kind:    health.KindValidation,
			message: "rewrite rejected: rewrite is identical to the original",
		},
		{
			name:    "placeholder",
			querier: llmquery.NewMockText(fenced("int f() {\n    // ...\n  }")),
			kind:    health.KindValidation,
			message: "elides code",
		},
		{
			name:    "unfenced prose",
			querier: llmquery.NewMockText("I cannot help with that request."),
			kind:    health.KindValidation,
			message: "response is not code",
		},
		{
			name:    "refusal",
			querier: llmquery.NewMock(llmquery.Reply{Err: health.NewKindErr(health.KindValidation, "model refused the request")}),
			kind:    health.KindValidation,
			message: "model refused",
		},
		{
			name:    "provider error",
			querier: llmquery.NewMock(llmquery.Reply{Err: errors.New("401 unauthorized")}),
			kind:    health.KindProvider,
			message: "401 unauthorized",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &statusRecorder{}
			m := New(Deps{Querier: tt.querier, Status: rec}, Options{QueryTimeout: tt.timeout})

			id := m.Start(testUnit(t), "")
			waitState(t, m, StateFailed)
			assert.False(t, m.IsActive())
			m.Close()

			last := rec.last(id)
			assert.Equal(t, StateFailed, last.State)
			assert.Contains(t, last.Message, tt.message)
			require.Error(t, last.Err)
			assert.Equal(t, tt.kind, health.KindOf(last.Err))
			assert.NotContains(t, rec.states(id), StateReview)
		})
	}
}

func TestManager_PromptTooLarge(t *testing.T) {
	rec := &statusRecorder{}
	q := llmquery.NewMockText(fenced(testRewrite))
	m := New(Deps{Querier: q, Prompts: tinyBudget{}, Status: rec}, Options{})

	id := m.Start(testUnit(t), "")
	waitState(t, m, StateFailed)
	m.Close()

	assert.Empty(t, q.Prompts())
	assert.Equal(t, health.KindProvider, health.KindOf(rec.last(id).Err))
	assert.Equal(t, []State{StatePending, StateFailed}, rec.states(id))
}

type tinyBudget struct{}

func (tinyBudget) System() string { return "" }
func (tinyBudget) Build(codeunit.CodeUnit, string) (string, error) {
	return "", health.NewKindErr(health.KindProvider, "prompt exceeds token limit")
}

func TestManager_Cancel(t *testing.T) {
	rec := &statusRecorder{}
	q := &llmquery.Mock{Delay: 5 * time.Second}
	m := New(Deps{Querier: q, Status: rec}, Options{})

	m.Cancel() // nothing active

	id := m.Start(testUnit(t), "")
	waitState(t, m, StateQuerying)
	m.Cancel()
	assert.False(t, m.IsActive())
	assert.Equal(t, StateCancelled, m.State())
	m.Cancel()

	m.Close()
	assert.Equal(t, []State{StatePending, StateQuerying, StateCancelled}, rec.states(id))
	assert.NoError(t, rec.last(id).Err)
}

func TestManager_Supersede(t *testing.T) {
	rec := &statusRecorder{}
	q := &llmquery.Mock{Fallback: func(ctx context.Context, prompt string, _ llmquery.Options) (string, error) {
		if strings.Contains(prompt, "first") {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-ctx.Done():
			}
			return fenced("int f() {\n    return 1;\n  }"), nil
		}
		return fenced(testRewrite), nil
	}}
	m := New(Deps{Querier: q, Status: rec}, Options{})

	first := m.Start(testUnit(t), "first")
	waitState(t, m, StateQuerying)
	second := m.Start(testUnit(t), "second")
	assert.Greater(t, second, first)

	waitState(t, m, StateReview)
	r, ok := m.Review()
	require.True(t, ok)
	assert.Equal(t, second, r.RequestID)
	assert.Equal(t, testRewrite, r.Rewritten)

	// The first request's reply arrives after it was superseded and must not be observed.
	time.Sleep(400 * time.Millisecond)
	r, ok = m.Review()
	require.True(t, ok)
	assert.Equal(t, second, r.RequestID)

	_, err := m.Decide(context.Background(), Decision{RequestID: first, Kind: DecisionAccept})
	assert.ErrorIs(t, err, ErrStaleRequest)

	m.Close()
	assert.Equal(t, []State{StatePending, StateQuerying, StateCancelled}, rec.states(first))
	assert.Equal(t, StateCancelled, rec.states(second)[len(rec.states(second))-1], "closed while in review")
	assert.Contains(t, rec.last(first).Message, "superseded")
}

func TestManager_AcceptAndReject(t *testing.T) {
	t.Run("accept outside review", func(t *testing.T) {
		m := New(Deps{Querier: &llmquery.Mock{Delay: 5 * time.Second}, Applier: &fakeApplier{}}, Options{})
		defer m.Close()

		_, err := m.Accept(context.Background())
		assert.ErrorIs(t, err, ErrNotInReview)

		m.Start(testUnit(t), "")
		waitState(t, m, StateQuerying)
		_, err = m.Accept(context.Background())
		assert.ErrorIs(t, err, ErrNotInReview)
		assert.Equal(t, StateQuerying, m.State())
	})

	t.Run("apply failure stays in review", func(t *testing.T) {
		rec := &statusRecorder{}
		applier := &fakeApplier{errs: []error{health.NewKindErr(health.KindApply, "document changed since snapshot"), nil}}
		m := New(Deps{Querier: llmquery.NewMockText(fenced(testRewrite)), Applier: applier, Status: rec}, Options{})

		id := m.Start(testUnit(t), "")
		waitState(t, m, StateReview)

		_, err := m.Accept(context.Background())
		require.Error(t, err)
		assert.Equal(t, health.KindApply, health.KindOf(err))
		assert.Equal(t, StateReview, m.State())
		_, ok := m.Review()
		assert.True(t, ok)

		_, err = m.Accept(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateApplied, m.State())

		m.Close()
		states := rec.states(id)
		assert.Equal(t, []State{StatePending, StateQuerying, StateParsing, StateDiffing, StateReview, StateReview, StateApplied}, states)
	})

	t.Run("plain apply error gets apply kind", func(t *testing.T) {
		applier := &fakeApplier{errs: []error{errors.New("disk full")}}
		m := New(Deps{Querier: llmquery.NewMockText(fenced(testRewrite)), Applier: applier}, Options{})
		defer m.Close()

		m.Start(testUnit(t), "")
		waitState(t, m, StateReview)
		_, err := m.Accept(context.Background())
		assert.True(t, health.IsKind(err, health.KindApply))
	})

	t.Run("no applier", func(t *testing.T) {
		m := New(Deps{Querier: llmquery.NewMockText(fenced(testRewrite))}, Options{})
		defer m.Close()

		m.Start(testUnit(t), "")
		waitState(t, m, StateReview)
		_, err := m.Accept(context.Background())
		assert.True(t, health.IsKind(err, health.KindConfig))
		assert.Equal(t, StateReview, m.State())
	})

	t.Run("reject in review", func(t *testing.T) {
		applier := &fakeApplier{}
		m := New(Deps{Querier: llmquery.NewMockText(fenced(testRewrite)), Applier: applier}, Options{})
		defer m.Close()

		id := m.Start(testUnit(t), "")
		waitState(t, m, StateReview)
		require.NoError(t, m.Reject())
		assert.Equal(t, StateRejected, m.State())
		_, ok := m.Review()
		assert.False(t, ok)
		assert.Empty(t, applier.calls)

		_, err := m.Decide(context.Background(), Decision{RequestID: id, Kind: DecisionAccept})
		assert.ErrorIs(t, err, ErrStaleRequest)
		assert.NoError(t, m.Reject())
	})

	t.Run("reject while querying", func(t *testing.T) {
		m := New(Deps{Querier: &llmquery.Mock{Delay: 5 * time.Second}}, Options{})
		defer m.Close()

		m.Start(testUnit(t), "")
		waitState(t, m, StateQuerying)
		require.NoError(t, m.Reject())
		assert.Equal(t, StateRejected, m.State())
	})
}

func TestManager_CancelPredicate(t *testing.T) {
	var userTyped atomic.Bool
	var polledID atomic.Uint64
	rec := &statusRecorder{}
	m := New(Deps{
		Querier: &llmquery.Mock{Delay: 5 * time.Second},
		Status:  rec,
		CancelPredicate: func(id RequestID) bool {
			polledID.Store(uint64(id))
			return userTyped.Load()
		},
	}, Options{PollInterval: 2 * time.Millisecond})

	id := m.Start(testUnit(t), "")
	waitState(t, m, StateQuerying)
	require.Eventually(t, func() bool { return polledID.Load() == uint64(id) }, time.Second, time.Millisecond)
	assert.True(t, m.IsActive())

	userTyped.Store(true)
	waitState(t, m, StateCancelled)
	m.Close()
	assert.Equal(t, StateCancelled, rec.last(id).State)
}

func TestManager_DisableStructural(t *testing.T) {
	var got []diff.Config
	var mu sync.Mutex
	differ := differFunc(func(ctx context.Context, oldUnit, newUnit string, cfg diff.Config) diff.EnhancedDiff {
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
		return diff.NewEngine(nil).DiffUnits(ctx, oldUnit, newUnit, cfg)
	})
	m := New(Deps{Querier: llmquery.NewMockText(fenced(testRewrite)), Differ: differ}, Options{})
	defer m.Close()

	m.Start(testUnit(t), "")
	waitState(t, m, StateReview)

	m.SetOptions(Options{DisableStructural: true})
	m.Start(testUnit(t), "")
	waitState(t, m, StateReview)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.True(t, got[0].PreferStructural)
	assert.False(t, got[1].PreferStructural)
	assert.Equal(t, detectlang.LangJava, got[1].Lang)
}

type differFunc func(ctx context.Context, oldUnit, newUnit string, cfg diff.Config) diff.EnhancedDiff

func (f differFunc) DiffUnits(ctx context.Context, oldUnit, newUnit string, cfg diff.Config) diff.EnhancedDiff {
	return f(ctx, oldUnit, newUnit, cfg)
}

func TestManager_Close(t *testing.T) {
	rec := &statusRecorder{}
	m := New(Deps{Querier: &llmquery.Mock{Delay: 5 * time.Second}, Status: rec}, Options{})

	id := m.Start(testUnit(t), "")
	waitState(t, m, StateQuerying)
	m.Close()
	m.Close()

	assert.Equal(t, StateCancelled, m.State())
	assert.Equal(t, StateCancelled, rec.last(id).State)
	assert.Equal(t, RequestID(0), m.Start(testUnit(t), ""))
}

// TestManager_RandomSequences drives the manager with random operations and checks that at most one request is ever in flight, that it is always the most
// recently started one, and that no request's statuses are interleaved with a newer request's.
func TestManager_RandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewSource(seed))
		rec := &statusRecorder{}
		q := &llmquery.Mock{Fallback: func(ctx context.Context, _ string, _ llmquery.Options) (string, error) {
			select {
			case <-time.After(time.Duration(rand.Intn(3)) * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return fenced(testRewrite), nil
		}}
		m := New(Deps{Querier: q, Applier: &fakeApplier{}, Status: rec}, Options{})

		var lastStarted RequestID
		for i := 0; i < 60; i++ {
			switch rng.Intn(5) {
			case 0, 1:
				id := m.Start(testUnit(t), "")
				require.Greater(t, id, lastStarted)
				lastStarted = id
			case 2:
				m.Cancel()
			case 3:
				_, err := m.Accept(context.Background())
				if err != nil {
					require.ErrorIs(t, err, ErrNotInReview)
				}
			case 4:
				require.NoError(t, m.Reject())
			}
			if rng.Intn(3) == 0 {
				time.Sleep(time.Duration(rng.Intn(4)) * time.Millisecond)
			}

			cur, ok := m.Current()
			assert.Equal(t, ok, m.IsActive())
			if ok {
				assert.Equal(t, lastStarted, cur.ID)
				assert.True(t, cur.State.InFlight())
			}
		}
		m.Close()

		var prevID RequestID
		lastState := map[RequestID]State{}
		for _, s := range rec.all() {
			require.GreaterOrEqual(t, s.RequestID, prevID, "seed %d: status for request %d after request %d", seed, s.RequestID, prevID)
			prevID = s.RequestID
			prev, seen := lastState[s.RequestID]
			if seen {
				require.False(t, prev.Terminal(), "seed %d: status after terminal state for request %d", seed, s.RequestID)
				require.Greater(t, s.State, prev, "seed %d: request %d went from %s to %s", seed, s.RequestID, prev, s.State)
			}
			lastState[s.RequestID] = s.State
		}
		for id, st := range lastState {
			assert.True(t, st.Terminal(), "seed %d: request %d ended in %s", seed, id, st)
		}
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "REVIEW", StateReview.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReview.Terminal())
	assert.True(t, StatePending.InFlight())
	assert.False(t, StateIdle.InFlight())
	assert.Equal(t, "reject", DecisionReject.String())
}
