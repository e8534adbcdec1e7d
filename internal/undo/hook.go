package undo

import (
	"sort"
	"sync"

	"github.com/dshills/reframe/internal/dispatcher/handler"
	"github.com/dshills/reframe/internal/history"
)

// UndoableHook is a pre-dispatch hook that captures the current state with
// StoreNow before any of its commands run, making them undoable.
type UndoableHook struct {
	mu       sync.RWMutex
	manager  *history.Manager
	commands map[string]struct{}
}

// NewUndoableHook creates a hook for the named commands.
func NewUndoableHook(m *history.Manager, names ...string) *UndoableHook {
	h := &UndoableHook{
		manager:  m,
		commands: make(map[string]struct{}, len(names)),
	}
	for _, name := range names {
		h.commands[name] = struct{}{}
	}
	return h
}

// Add marks more commands as undoable.
func (h *UndoableHook) Add(names ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range names {
		h.commands[name] = struct{}{}
	}
}

// IsUndoable reports whether name is marked.
func (h *UndoableHook) IsUndoable(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.commands[name]
	return ok
}

// Commands returns the marked command names, sorted.
func (h *UndoableHook) Commands() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PreDispatch implements dispatcher.PreDispatchHook.
func (h *UndoableHook) PreDispatch(ev *handler.Event, _ *handler.Context) bool {
	if h.IsUndoable(ev.Name) {
		h.manager.StoreNow()
	}
	return true
}
