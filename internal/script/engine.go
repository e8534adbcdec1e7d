// Package script runs Lua command handlers.
//
// A script defines global functions that take the current db and the event
// arguments and return the next db:
//
//	function add_todo(db, text)
//	  db.todos = db.todos or {}
//	  table.insert(db.todos, text)
//	  return db
//	end
//
// Engine.Handler turns such a function into a handler.DBFunc. Only the base,
// table, string and math libraries are opened.
//
// gopher-lua states are not goroutine-safe; Engine serializes every call.
package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/reframe/internal/dispatcher/handler"
)

// DefaultTimeout bounds a single Lua call.
const DefaultTimeout = 5 * time.Second

// Engine wraps one sandboxed Lua state.
type Engine struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	closed  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each Lua call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// NewEngine creates an engine with the safe standard libraries loaded.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	e.L = L
	return e
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// base opens these; they reach the file system or the package loader
	for _, name := range []string{"dofile", "loadfile", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// LoadFile executes a Lua file, defining its globals.
func (e *Engine) LoadFile(path string) error {
	return e.do(func() error {
		if err := e.L.DoFile(path); err != nil {
			return &Error{Source: path, Err: err}
		}
		return nil
	})
}

// LoadString executes Lua source, defining its globals.
func (e *Engine) LoadString(code string) error {
	return e.do(func() error {
		if err := e.L.DoString(code); err != nil {
			return &Error{Source: "<string>", Err: err}
		}
		return nil
	})
}

// HasFunction reports whether name is a global Lua function.
func (e *Engine) HasFunction(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.L.GetGlobal(name).Type() == lua.LTFunction
}

// Call invokes a global function with Go arguments and returns its Go
// results.
func (e *Engine) Call(name string, args ...any) ([]any, error) {
	var out []any
	err := e.do(func() error {
		fn := e.L.GetGlobal(name)
		if fn.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
		}

		if e.timeout > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()
			e.L.SetContext(ctx)
			defer e.L.RemoveContext()
		}

		top := e.L.GetTop()
		e.L.Push(fn)
		for _, arg := range args {
			e.L.Push(toLua(e.L, arg))
		}
		if err := e.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return &Error{Source: name, Err: err}
		}

		n := e.L.GetTop() - top
		out = make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = toGo(e.L.Get(top + i + 1))
		}
		e.L.Pop(n)
		return nil
	})
	return out, err
}

// Handler returns a db transition backed by the Lua function name. The
// function receives the db followed by the event arguments. Returning nil
// leaves the db unchanged.
func (e *Engine) Handler(name string) handler.DBFunc {
	return func(db any, ev handler.Event) (any, error) {
		args := append([]any{db}, ev.Args...)
		out, err := e.Call(name, args...)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 || out[0] == nil {
			return db, nil
		}
		return out[0], nil
	}
}

// Close releases the Lua state. Later calls return ErrEngineClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.L.Close()
}

func (e *Engine) do(fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}
