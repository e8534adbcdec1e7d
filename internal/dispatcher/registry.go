package dispatcher

import (
	"sort"
	"sync"

	"github.com/dshills/reframe/internal/dispatcher/handler"
)

// Registry manages handler registration by command name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]handler.Handler // sorted by priority, descending
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]handler.Handler),
	}
}

// Register adds a handler for a command name.
func (r *Registry) Register(name string, h handler.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handlers := append(r.handlers[name], h)
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].Priority() > handlers[j].Priority()
	})
	r.handlers[name] = handlers
}

// Unregister removes all handlers for a command name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Get returns the highest priority handler, or nil.
func (r *Registry) Get(name string) handler.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := r.handlers[name]
	if len(handlers) == 0 {
		return nil
	}
	return handlers[0]
}

// Has returns true if a handler is registered for the name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name]) > 0
}

// List returns all registered command names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered command names.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Clear removes all registered handlers.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]handler.Handler)
}
