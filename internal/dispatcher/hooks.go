package dispatcher

import "github.com/dshills/reframe/internal/dispatcher/handler"

// PreDispatchHook is called before a command is dispatched.
// Returning false cancels the command; the handler is not run.
type PreDispatchHook interface {
	PreDispatch(ev *handler.Event, ctx *handler.Context) bool
}

// PostDispatchHook is called after a command is dispatched.
// It may inspect or modify the result.
type PostDispatchHook interface {
	PostDispatch(ev *handler.Event, ctx *handler.Context, result *handler.Result)
}

// PreDispatchFunc is a function adapter for PreDispatchHook.
type PreDispatchFunc func(ev *handler.Event, ctx *handler.Context) bool

// PreDispatch implements PreDispatchHook.
func (f PreDispatchFunc) PreDispatch(ev *handler.Event, ctx *handler.Context) bool {
	return f(ev, ctx)
}

// PostDispatchFunc is a function adapter for PostDispatchHook.
type PostDispatchFunc func(ev *handler.Event, ctx *handler.Context, result *handler.Result)

// PostDispatch implements PostDispatchHook.
func (f PostDispatchFunc) PostDispatch(ev *handler.Event, ctx *handler.Context, result *handler.Result) {
	f(ev, ctx, result)
}

// Logger is the subset of a structured logger the logging hook needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// LoggingHook logs every completed dispatch: successes at debug, failures
// at warn.
type LoggingHook struct {
	Logger Logger
}

// NewLoggingHook creates a new logging hook.
func NewLoggingHook(logger Logger) *LoggingHook {
	return &LoggingHook{Logger: logger}
}

// PostDispatch implements PostDispatchHook.
func (h *LoggingHook) PostDispatch(ev *handler.Event, ctx *handler.Context, result *handler.Result) {
	if h.Logger == nil {
		return
	}

	args := []any{
		"event", ev.Name,
		"id", ev.ID,
		"status", result.Status.String(),
		"duration", ctx.Elapsed(),
	}
	if result.IsError() {
		h.Logger.Warn("dispatch failed", append(args, "error", result.Error)...)
		return
	}
	h.Logger.Debug("dispatch complete", args...)
}

// ValidationHook cancels commands its function rejects.
type ValidationHook struct {
	ValidateFunc func(ev *handler.Event, ctx *handler.Context) bool
}

// PreDispatch implements PreDispatchHook.
func (h *ValidationHook) PreDispatch(ev *handler.Event, ctx *handler.Context) bool {
	if h.ValidateFunc != nil {
		return h.ValidateFunc(ev, ctx)
	}
	return true
}
