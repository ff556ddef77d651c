// Package rewrite owns the lifecycle of AI rewrites of code units. A Manager runs at most one request at a time through
//
//	PENDING → QUERYING → PARSING → DIFFING → REVIEW → APPLIED | REJECTED
//
// with CANCELLED and FAILED reachable from any non-terminal state. Starting a request while another is active supersedes (cancels) the older one. Every state
// change for a request first checks that the request is still the active one, so a superseded pipeline can never touch its successor's state or emit statuses
// that look like its successor's.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/codalotl/coderewrite/internal/apply"
	"github.com/codalotl/coderewrite/internal/codeunit"
	"github.com/codalotl/coderewrite/internal/diff"
	"github.com/codalotl/coderewrite/internal/llmquery"
	"github.com/codalotl/coderewrite/internal/q/health"
	"github.com/codalotl/coderewrite/internal/response"
	"github.com/codalotl/coderewrite/internal/rewriteprompt"
)

var (
	// ErrNotInReview is returned by Accept when the current request is not awaiting a decision.
	ErrNotInReview = errors.New("rewrite: no request in review")

	// ErrStaleRequest is returned by Decide when the decision targets a request that is no longer current.
	ErrStaleRequest = errors.New("rewrite: decision for stale request")

	// ErrClosed is returned for operations on a closed Manager.
	ErrClosed = errors.New("rewrite: manager closed")

	errSuperseded = errors.New("superseded")
)

// RequestID identifies a request. IDs increase monotonically per Manager, starting at 1. 0 means "no request".
type RequestID uint64

// Request is a snapshot of a rewrite request.
type Request struct {
	ID          RequestID
	Unit        codeunit.CodeUnit
	Instruction string
	State       State
}

// Review is what the user decides on: the validated rewrite and its diff against the original.
type Review struct {
	RequestID RequestID
	Unit      codeunit.CodeUnit
	Rewritten string
	Parsed    response.Parsed
	Diff      diff.EnhancedDiff
}

// PromptBuilder builds prompts. rewriteprompt.Builder implements it.
type PromptBuilder interface {
	System() string
	Build(unit codeunit.CodeUnit, instruction string) (string, error)
}

// Differ diffs an original unit against its rewrite. *diff.Engine implements it.
type Differ interface {
	DiffUnits(ctx context.Context, oldUnit, newUnit string, cfg diff.Config) diff.EnhancedDiff
}

// Applier writes an accepted rewrite. *apply.Applier implements it.
type Applier interface {
	Apply(ctx context.Context, unit codeunit.CodeUnit, rewritten string) (apply.Outcome, error)
}

// CancelPredicate is polled while a request is in flight; returning true cancels the request (ex: the user typed inside the unit, or pressed escape).
type CancelPredicate func(id RequestID) bool

// Deps are a Manager's collaborators. Querier is required; the rest have defaults or are optional.
type Deps struct {
	Querier llmquery.Querier
	Prompts PromptBuilder   // default: rewriteprompt.Builder{}
	Parser  response.Parser // default: response.MarkdownParser{}
	Differ  Differ          // default: diff.NewEngine(Logger), text strategy only

	// Applier is required to Accept.
	Applier Applier

	Status          StatusSink
	CancelPredicate CancelPredicate

	// Registerer receives the manager's metrics. Nil disables registration.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// Options tune a Manager. Zero values get defaults. Options are copied when a request starts, so a request runs with the options current at its start.
type Options struct {
	// QueryTimeout bounds the model query. Default 60s.
	QueryTimeout time.Duration

	// PollInterval is how often CancelPredicate is polled. Default 100ms.
	PollInterval time.Duration

	// Workers bounds concurrently running pipelines, including superseded ones that are still unwinding. Default 2.
	Workers int64

	// Query is passed to the Querier. Query.System defaults to the prompt builder's system message.
	Query llmquery.Options

	// DisableStructural forces the text diff strategy.
	DisableStructural bool
}

const (
	defaultQueryTimeout = 60 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultWorkers      = 2
)

func (o Options) withDefaults() Options {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = defaultQueryTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	return o
}

// Manager runs rewrite requests. All methods are safe for concurrent use.
type Manager struct {
	health.Ctx
	deps      Deps
	sessionID string
	metrics   *metrics
	sem       *semaphore.Weighted
	statuses  *statusQueue
	wg        sync.WaitGroup

	// activeID is the id of the in-flight request, or 0. It is only changed with mu held, but may be read without it.
	activeID atomic.Uint64

	mu        sync.Mutex
	opts      Options
	nextID    RequestID
	cur       *active // nil unless a request is in flight
	lastID    RequestID
	lastState State
	closed    bool
}

// active is the in-flight request and everything derived from it. Only the Manager touches it, with mu held.
type active struct {
	req    Request
	cancel context.CancelCauseFunc
	review *Review
}

// New returns a Manager. It panics if deps.Querier is nil. Close releases its goroutines.
func New(deps Deps, opts Options) *Manager {
	if deps.Querier == nil {
		panic("rewrite: Deps.Querier is nil")
	}
	if deps.Prompts == nil {
		deps.Prompts = rewriteprompt.Builder{}
	}
	if deps.Parser == nil {
		deps.Parser = response.MarkdownParser{}
	}
	if deps.Differ == nil {
		deps.Differ = diff.NewEngine(deps.Logger)
	}

	sessionID := uuid.NewString()
	logger := deps.Logger
	if logger != nil {
		logger = logger.With("session", sessionID)
	}
	opts = opts.withDefaults()

	return &Manager{
		Ctx:       health.NewCtx(logger),
		deps:      deps,
		sessionID: sessionID,
		metrics:   newMetrics(deps.Registerer),
		sem:       semaphore.NewWeighted(opts.Workers),
		statuses:  newStatusQueue(deps.Status),
		opts:      opts,
	}
}

// SessionID identifies this Manager in logs.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// SetOptions replaces the options used by subsequently started requests. Workers cannot be changed after New and is ignored.
func (m *Manager) SetOptions(opts Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	workers := m.opts.Workers
	m.opts = opts.withDefaults()
	m.opts.Workers = workers
}

// Start begins rewriting unit per instruction (which may be empty) and returns the new request's id immediately. Any in-flight request is cancelled first.
// Start returns 0 if the Manager is closed.
func (m *Manager) Start(unit codeunit.CodeUnit, instruction string) RequestID {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0
	}
	m.nextID++
	id := m.nextID
	if m.cur != nil {
		m.transitionLocked(m.cur.req.ID, StateCancelled, fmt.Sprintf("superseded by request %d", id), nil, errSuperseded)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	m.cur = &active{
		req:    Request{ID: id, Unit: unit, Instruction: instruction, State: StatePending},
		cancel: cancel,
	}
	m.activeID.Store(uint64(id))
	m.statuses.push(Status{RequestID: id, State: StatePending, Message: "rewriting " + unit.QualifiedName()})
	opts := m.opts
	monitored := m.deps.CancelPredicate != nil
	m.wg.Add(1)
	if monitored {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.metrics.started.Inc()
	m.Log("rewrite started", "request", id, "unit", unit.String())

	go m.run(ctx, id, unit, instruction, opts)
	if monitored {
		go m.monitor(ctx, id, opts.PollInterval)
	}
	return id
}

// Cancel cancels the in-flight request, if any.
func (m *Manager) Cancel() {
	id := RequestID(m.activeID.Load())
	if id == 0 {
		return
	}
	m.cancelRequest(id, "cancelled")
}

func (m *Manager) cancelRequest(id RequestID, msg string) bool {
	return m.transition(id, StateCancelled, msg, nil, context.Canceled)
}

// DecisionKind is the user's verdict on a review.
type DecisionKind int

const (
	DecisionAccept DecisionKind = iota + 1
	DecisionReject
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is a verdict on a specific request.
type Decision struct {
	RequestID RequestID
	Kind      DecisionKind
}

// Accept accepts the current request. See Decide.
func (m *Manager) Accept(ctx context.Context) (apply.Outcome, error) {
	id := RequestID(m.activeID.Load())
	if id == 0 {
		return apply.Outcome{}, ErrNotInReview
	}
	return m.Decide(ctx, Decision{RequestID: id, Kind: DecisionAccept})
}

// Reject rejects the current request. See Decide.
func (m *Manager) Reject() error {
	id := RequestID(m.activeID.Load())
	if id == 0 {
		return nil
	}
	_, err := m.Decide(context.Background(), Decision{RequestID: id, Kind: DecisionReject})
	if errors.Is(err, ErrStaleRequest) {
		return nil
	}
	return err
}

// Decide applies d. A decision for a request other than the in-flight one returns ErrStaleRequest and has no effect.
//
// Accept is only valid in REVIEW (ErrNotInReview otherwise). It applies the rewrite and moves to APPLIED; if applying fails, the request stays in REVIEW so
// the accept can be retried, and the error (a health.KindApply error) is returned. Other state changes wait while the applier runs.
//
// Reject is valid in any non-terminal state and moves to REJECTED, discarding the rewrite.
func (m *Manager) Decide(ctx context.Context, d Decision) (apply.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.req.ID != d.RequestID {
		return apply.Outcome{}, ErrStaleRequest
	}

	switch d.Kind {
	case DecisionReject:
		m.transitionLocked(d.RequestID, StateRejected, "rewrite rejected", nil, context.Canceled)
		return apply.Outcome{}, nil
	case DecisionAccept:
		return m.acceptLocked(ctx)
	default:
		return apply.Outcome{}, fmt.Errorf("rewrite: unknown decision %v", d.Kind)
	}
}

func (m *Manager) acceptLocked(ctx context.Context) (apply.Outcome, error) {
	a := m.cur
	if a.req.State != StateReview || a.review == nil {
		return apply.Outcome{}, ErrNotInReview
	}
	id := a.req.ID

	if m.deps.Applier == nil {
		err := m.LogKindErr(health.KindConfig, "no applier configured", nil, "request", id)
		m.statuses.push(Status{RequestID: id, State: StateReview, Message: "cannot apply: " + err.Error(), Err: err})
		return apply.Outcome{}, err
	}

	out, err := m.deps.Applier.Apply(ctx, a.review.Unit, a.review.Rewritten)
	if err != nil {
		if health.KindOf(err) == health.KindNone {
			err = health.WrapKind(health.KindApply, "apply rewrite", err)
		}
		m.Log("apply failed; request stays in review", "request", id, "err", err)
		m.statuses.push(Status{RequestID: id, State: StateReview, Message: "could not apply rewrite: " + err.Error(), Err: err})
		return apply.Outcome{}, err
	}

	msg := fmt.Sprintf("rewrite applied (%s replacement)", out.Mode)
	m.transitionLocked(id, StateApplied, msg, nil, context.Canceled)
	return out, nil
}

// IsActive reports whether a request is in flight (started and not yet terminal).
func (m *Manager) IsActive() bool {
	return m.activeID.Load() != 0
}

// Current returns a snapshot of the in-flight request. ok is false if none is in flight.
func (m *Manager) Current() (req Request, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Request{}, false
	}
	return m.cur.req, true
}

// Review returns the in-flight request's review. ok is false unless the request is in REVIEW.
func (m *Manager) Review() (r Review, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.review == nil || m.cur.req.State != StateReview {
		return Review{}, false
	}
	return *m.cur.review, true
}

// State returns the in-flight request's state, or else the last request's terminal state, or IDLE if no request was ever started.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		return m.cur.req.State
	}
	return m.lastState
}

// Last returns the id and terminal state of the most recently finished request (0, IDLE if none).
func (m *Manager) Last() (RequestID, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastID, m.lastState
}

// Close cancels any in-flight request, waits for pipelines to unwind, and delivers all pending statuses. Start returns 0 afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.cur != nil {
		m.transitionLocked(m.cur.req.ID, StateCancelled, "cancelled: manager closed", nil, ErrClosed)
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.statuses.close()
}

// transition moves request id to state to, emitting a status with msg and err. It returns false, and does nothing, if id is not the in-flight request.
// Entering a terminal state releases the request and cancels its context with cause.
func (m *Manager) transition(id RequestID, to State, msg string, err error, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, to, msg, err, cause)
}

func (m *Manager) transitionLocked(id RequestID, to State, msg string, err error, cause error) bool {
	if m.cur == nil || m.cur.req.ID != id || !m.cur.req.State.InFlight() || RequestID(m.activeID.Load()) != id {
		return false
	}
	from := m.cur.req.State
	m.cur.req.State = to
	m.statuses.push(Status{RequestID: id, State: to, Message: msg, Err: err})
	m.Debug("rewrite state", "request", id, "from", from.String(), "to", to.String())

	if to.Terminal() {
		m.cur.cancel(cause)
		m.activeID.CompareAndSwap(uint64(id), 0)
		m.cur = nil
		m.lastID = id
		m.lastState = to
		m.metrics.finished.WithLabelValues(to.String()).Inc()
		m.Log("rewrite finished", "request", id, "state", to.String())
	}
	return true
}

// setReview stores the review and moves id to REVIEW, if id is still in flight.
func (m *Manager) setReview(id RequestID, r *Review) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.req.ID != id {
		return false
	}
	m.cur.review = r
	if !m.transitionLocked(id, StateReview, r.Diff.String(), nil, nil) {
		m.cur.review = nil
		return false
	}
	return true
}
