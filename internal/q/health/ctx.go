package health

import "log/slog"

// Ctx is embedded by types that log. A nil Logger disables logging.
type Ctx struct {
	Logger *slog.Logger
}

func NewCtx(logger *slog.Logger) Ctx {
	return Ctx{Logger: logger}
}

func (c Ctx) LogNewErr(msg string, args ...any) error {
	return LogNewErr(c.Logger, msg, args...)
}

func (c Ctx) LogWrappedErr(msg string, wrapped error, args ...any) error {
	return LogWrappedErr(c.Logger, msg, wrapped, args...)
}

// LogKindErr creates an error of kind, logs it, and returns it. If wrapped is non-nil, it is wrapped.
func (c Ctx) LogKindErr(kind Kind, msg string, wrapped error, args ...any) error {
	if wrapped == nil {
		return LogErr(c.Logger, NewKindErr(kind, msg, args...))
	}
	return LogErr(c.Logger, WrapKind(kind, msg, wrapped, args...))
}

func (c Ctx) Log(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Info(msg, args...)
	}
}

func (c Ctx) Debug(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}
