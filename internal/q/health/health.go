// Package health provides structured errors that carry slog attributes and an optional Kind, plus helpers to log and return them in one step.
package health

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
)

// HealthErr is an error with a log-friendly message, slog-style attributes, an optional Kind, and an optional wrapped cause.
type HealthErr struct {
	Message string
	Kind    Kind // optional; see KindOf
	wrapped error
	attrs   []any
}

// Error renders kind, message, attrs, and the wrapped chain, ex: `timeout: model query[request=3] via context deadline exceeded`.
func (e *HealthErr) Error() string {
	var b strings.Builder
	if e.Kind != KindNone {
		b.WriteString(string(e.Kind))
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if s := formatAttrs(e.attrs); s != "" {
		b.WriteString("[")
		b.WriteString(s)
		b.WriteString("]")
	}
	if e.wrapped != nil {
		b.WriteString(" via ")
		b.WriteString(e.wrapped.Error())
	}
	return b.String()
}

func (e *HealthErr) Unwrap() error {
	return e.wrapped
}

// Attrs returns a copy of the error's attributes, in slog's key/value (or slog.Attr) form.
func (e *HealthErr) Attrs() []any {
	return append([]any(nil), e.attrs...)
}

// NewErr returns a new, unlogged error. args are key/value pairs or slog.Attrs, as for slog.Info. To wrap an error, use Wrap.
func NewErr(msg string, args ...any) error {
	return &HealthErr{Message: msg, attrs: args}
}

// Wrap returns an error with msg and args that wraps wrapped. A nil wrapped is replaced by a placeholder error so the mistake shows up in logs.
func Wrap(msg string, wrapped error, args ...any) error {
	if wrapped == nil {
		wrapped = errors.New("health.Wrap called with a nil error")
	}
	return &HealthErr{Message: msg, wrapped: wrapped, attrs: args}
}

// NewKindErr is NewErr with a Kind.
func NewKindErr(kind Kind, msg string, args ...any) error {
	return &HealthErr{Message: msg, Kind: kind, attrs: args}
}

// WrapKind is Wrap with a Kind.
func WrapKind(kind Kind, msg string, wrapped error, args ...any) error {
	err := Wrap(msg, wrapped, args...).(*HealthErr)
	err.Kind = kind
	return err
}

// LogNewErr creates an error with msg and args, logs it, and returns it.
func LogNewErr(logger *slog.Logger, msg string, args ...any) error {
	return LogErr(logger, NewErr(msg, args...))
}

// LogWrappedErr wraps wrapped with msg and args, logs it, and returns it.
func LogWrappedErr(logger *slog.Logger, msg string, wrapped error, args ...any) error {
	return LogErr(logger, Wrap(msg, wrapped, args...))
}

// LogErr logs err to logger (if both are non-nil) and returns err, so that logging and returning take one line:
//
//	return health.LogErr(logger, health.NewErr("no body", "lang", lang), "request", id)
//
// A health error is logged with its own message, then kind, its attrs, the wrapped error under "via", and finally args. A HumanErr logs its log-oriented
// message, not the human one. KindCancelled errors are logged at info level; everything else at error level.
func LogErr(logger *slog.Logger, err error, args ...any) error {
	if logger == nil || err == nil {
		return err
	}

	logged := err
	if h, ok := err.(*HumanErr); ok {
		logged = &h.HealthErr
	}
	h, ok := logged.(*HealthErr)
	if !ok {
		logger.Error(err.Error(), args...)
		return err
	}

	all := make([]any, 0, len(h.attrs)+len(args)+2)
	if h.Kind != KindNone {
		all = append(all, slog.String("kind", string(h.Kind)))
	}
	all = append(all, h.attrs...)
	if h.wrapped != nil {
		all = append(all, slog.String("via", h.wrapped.Error()))
	}
	all = append(all, args...)

	level := slog.LevelError
	if h.Kind == KindCancelled {
		level = slog.LevelInfo
	}
	logger.Log(context.Background(), level, h.Message, all...)
	return err
}

// formatAttrs renders attrs the way slog's text handler does, ex: `num=3 str=hi`.
func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey, slog.LevelKey, slog.MessageKey:
				return slog.Attr{}
			}
			return a
		},
	})
	slog.New(h).Log(context.Background(), slog.LevelDebug, "", attrs...)
	return strings.TrimSuffix(buf.String(), "\n")
}
