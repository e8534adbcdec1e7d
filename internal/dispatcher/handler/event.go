package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is a named command with positional arguments.
type Event struct {
	// ID correlates log lines for one dispatch. Assigned on dispatch when empty.
	ID string

	// Name selects the handler.
	Name string

	// Args are the positional arguments following the name.
	Args []any
}

// NewEvent creates an event with a fresh ID.
func NewEvent(name string, args ...any) Event {
	return Event{
		ID:   uuid.NewString(),
		Name: name,
		Args: args,
	}
}

// Arg returns the i-th argument, or nil when absent.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// IntArg returns the i-th argument as an int.
// Absent arguments yield def; strings are parsed.
func (e Event) IntArg(i, def int) (int, error) {
	switch v := e.Arg(i).(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, fmt.Errorf("argument %d of %s: %w", i, e.Name, err)
		}
		return n, nil
	default:
		return def, fmt.Errorf("argument %d of %s: not an integer: %T", i, e.Name, v)
	}
}

// String returns "name" or "name args".
func (e Event) String() string {
	if len(e.Args) == 0 {
		return e.Name
	}
	return fmt.Sprintf("%s %v", e.Name, e.Args)
}

// Store is the state holder handlers read and replace.
type Store interface {
	Get() any
	Replace(v any)
}

// Context carries what a handler may touch while it runs.
type Context struct {
	// Store is the application state.
	Store Store

	// Started is when dispatch began.
	Started time.Time

	// Values is scratch space shared between hooks and the handler.
	Values map[string]any
}

// NewContext creates a context over store.
func NewContext(store Store) *Context {
	return &Context{
		Store:   store,
		Started: time.Now(),
		Values:  make(map[string]any),
	}
}

// Elapsed returns the time since dispatch began.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.Started)
}
