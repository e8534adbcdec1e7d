// Package handler provides the handler interface and types for command dispatch.
package handler

import "fmt"

// Handler processes one named command.
type Handler interface {
	// Handle executes the command and returns a result.
	Handle(ev Event, ctx *Context) Result

	// Priority returns the handler priority (higher = chosen first).
	Priority() int
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	fn   func(ev Event, ctx *Context) Result
	prio int
}

// NewHandlerFunc creates a HandlerFunc from a function.
func NewHandlerFunc(fn func(ev Event, ctx *Context) Result) *HandlerFunc {
	return &HandlerFunc{fn: fn}
}

// NewHandlerFuncWithPriority creates a HandlerFunc with a specified priority.
func NewHandlerFuncWithPriority(fn func(ev Event, ctx *Context) Result, priority int) *HandlerFunc {
	return &HandlerFunc{fn: fn, prio: priority}
}

// Handle implements Handler.
func (f *HandlerFunc) Handle(ev Event, ctx *Context) Result {
	if f.fn == nil {
		return Errorf("handler function is nil")
	}
	return f.fn(ev, ctx)
}

// Priority implements Handler.
func (f *HandlerFunc) Priority() int {
	return f.prio
}

// DBFunc is a pure state transition: it receives the current db and returns
// the next one.
type DBFunc func(db any, ev Event) (any, error)

// DBHandler adapts a DBFunc into a Handler that replaces the store with the
// returned value. The store is left untouched when the function fails.
type DBHandler struct {
	fn   DBFunc
	prio int
}

// NewDBHandler creates a DBHandler.
func NewDBHandler(fn DBFunc) *DBHandler {
	return &DBHandler{fn: fn}
}

// Handle implements Handler.
func (h *DBHandler) Handle(ev Event, ctx *Context) Result {
	if h.fn == nil {
		return Errorf("handler function is nil")
	}
	if ctx == nil || ctx.Store == nil {
		return Errorf("%s: no store in context", ev.Name)
	}

	next, err := h.fn(ctx.Store.Get(), ev)
	if err != nil {
		return Error(fmt.Errorf("%s: %w", ev.Name, err))
	}
	ctx.Store.Replace(next)
	return Success()
}

// Priority implements Handler.
func (h *DBHandler) Priority() int {
	return h.prio
}
