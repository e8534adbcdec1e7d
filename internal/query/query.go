// Package query compiles expr-lang expressions into subscription queries.
//
// An expression sees the current db as "db", the subscription arguments as
// "args", and, when the db is a map[string]any, each of its top-level keys
// directly:
//
//	len(todos) > 0
//	db.user.name
//	count * args[0]
package query

import (
	"errors"
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/dshills/reframe/internal/subs"
)

// ErrEmptyExpression is returned when compiling an empty expression.
var ErrEmptyExpression = errors.New("query: expression must not be empty")

// EvaluationError captures the expression alongside the originating error.
type EvaluationError struct {
	Expr string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("query: expr=%q: %v", e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ErrorHandler receives runtime evaluation failures. The failing query
// yields nil.
type ErrorHandler func(err error)

// Compiler compiles and caches expression programs.
type Compiler struct {
	mu      sync.Mutex
	cache   map[string]*exprvm.Program
	onError ErrorHandler
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithErrorHandler reports runtime evaluation failures to fn.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(c *Compiler) {
		c.onError = fn
	}
}

// NewCompiler creates a compiler with an empty program cache.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{cache: make(map[string]*exprvm.Program)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Compile returns a query evaluating expression against the db.
func (c *Compiler) Compile(expression string) (subs.QueryFunc, error) {
	program, err := c.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}

	return func(db any, args []any) any {
		out, err := exprlang.Run(program, environment(db, args))
		if err != nil {
			if c.onError != nil {
				c.onError(&EvaluationError{Expr: expression, Err: err})
			}
			return nil
		}
		return out
	}, nil
}

// Eval compiles (or reuses) expression and runs it once.
func (c *Compiler) Eval(expression string, db any, args ...any) (any, error) {
	program, err := c.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	out, err := exprlang.Run(program, environment(db, args))
	if err != nil {
		return nil, &EvaluationError{Expr: expression, Err: err}
	}
	return out, nil
}

// Cached returns the number of cached programs.
func (c *Compiler) Cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Compiler) loadOrCompile(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if program, ok := c.cache[expression]; ok {
		return program, nil
	}

	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &EvaluationError{Expr: expression, Err: err}
	}
	c.cache[expression] = program
	return program, nil
}

func environment(db any, args []any) map[string]any {
	env := map[string]any{}
	if m, ok := db.(map[string]any); ok {
		for k, v := range m {
			env[k] = v
		}
	}
	env["db"] = db
	if args == nil {
		args = []any{}
	}
	env["args"] = args
	return env
}
