package health

import "errors"

// HumanErr pairs a message for end users with a HealthErr for logs.
type HumanErr struct {
	HumanMessage string
	HealthErr
}

// NewHumanErr returns a HumanErr, which has both a message suitable for end-users and a message suitable for logging.
func NewHumanErr(humanMsg string, msg string, args ...any) error {
	return &HumanErr{HumanMessage: humanMsg, HealthErr: HealthErr{Message: msg, attrs: args}}
}

// WrapHuman is NewHumanErr wrapping cause. The wrapped error's Kind remains visible to KindOf.
func WrapHuman(humanMsg string, msg string, cause error, args ...any) error {
	h := Wrap(msg, cause, args...).(*HealthErr)
	return &HumanErr{HumanMessage: humanMsg, HealthErr: *h}
}

// Error returns the human message, or the log message if the human one is empty.
func (e *HumanErr) Error() string {
	if e.HumanMessage == "" {
		return e.HealthErr.Error()
	}
	return e.HumanMessage
}

// Unwrap exposes the embedded HealthErr, and through it the wrapped cause.
func (e *HumanErr) Unwrap() error {
	return &e.HealthErr
}

// HumanMessage returns the human message of the first HumanErr in err's chain that has one, else err.Error(). It returns "" for a nil err.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	var h *HumanErr
	if errors.As(err, &h) && h.HumanMessage != "" {
		return h.HumanMessage
	}
	return err.Error()
}
