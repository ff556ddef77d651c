package rewrite

import "fmt"

// State is a rewrite request's lifecycle state.
type State int

const (
	StateIdle State = iota // no request has been started
	StatePending
	StateQuerying
	StateParsing
	StateDiffing
	StateReview
	StateApplied
	StateRejected
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "IDLE",
	StatePending:   "PENDING",
	StateQuerying:  "QUERYING",
	StateParsing:   "PARSING",
	StateDiffing:   "DIFFING",
	StateReview:    "REVIEW",
	StateApplied:   "APPLIED",
	StateRejected:  "REJECTED",
	StateCancelled: "CANCELLED",
	StateFailed:    "FAILED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s is final. A request in a terminal state never changes state again.
func (s State) Terminal() bool {
	switch s {
	case StateApplied, StateRejected, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// InFlight reports whether s is a non-terminal request state (the pipeline is running or awaiting a decision).
func (s State) InFlight() bool {
	return s >= StatePending && s <= StateReview
}
