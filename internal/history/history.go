package history

import (
	"context"
	"sync"

	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
)

// DefaultMaxUndos is the bound on retained past snapshots.
const DefaultMaxUndos = 50

// Store is the state holder the manager snapshots and restores.
type Store interface {
	Get() any
	Replace(v any)
}

// Op names the operation that produced a Change.
type Op string

// Operations reported in Change notifications.
const (
	OpStoreNow   Op = "store-now"
	OpUndo       Op = "undo"
	OpRedo       Op = "redo"
	OpClear      Op = "clear"
	OpPurgeRedos Op = "purge-redos"
	OpSetMax     Op = "set-max-undos"
)

// Change is the payload of a topic.HistoryChanged notification.
type Change struct {
	Op        Op
	UndoCount int
	RedoCount int
}

// Manager owns the past and future snapshot stacks for one Store.
type Manager struct {
	mu sync.Mutex

	store     Store
	publisher event.Publisher

	maxUndos int
	past     []any // newest first
	future   []any
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxUndos sets the initial bound on past snapshots.
func WithMaxUndos(n int) Option {
	return func(m *Manager) {
		m.maxUndos = n
	}
}

// WithPublisher announces changes under topic.HistoryChanged.
func WithPublisher(p event.Publisher) Option {
	return func(m *Manager) {
		m.publisher = p
	}
}

// New creates a manager with empty history over store.
func New(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		maxUndos: DefaultMaxUndos,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetMaxUndos changes the bound on past snapshots. Values <= 0 disable
// retention. Past is trimmed immediately, keeping the newest entries.
func (m *Manager) SetMaxUndos(n int) {
	m.mu.Lock()
	m.maxUndos = n
	trimmed := m.trimLocked()
	change := m.changeLocked(OpSetMax)
	m.mu.Unlock()

	if trimmed {
		m.notify(change)
	}
}

// MaxUndos returns the current bound.
func (m *Manager) MaxUndos() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxUndos
}

// ClearHistory empties both stacks.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.past = nil
	m.future = nil
	change := m.changeLocked(OpClear)
	m.mu.Unlock()

	m.notify(change)
}

// StoreNow captures the store's current value as the newest past entry and
// discards all pending redos. Call it before applying a mutation.
func (m *Manager) StoreNow() {
	v := m.store.Get()

	m.mu.Lock()
	m.future = nil
	m.past = append([]any{v}, m.past...)
	m.trimLocked()
	change := m.changeLocked(OpStoreNow)
	m.mu.Unlock()

	m.notify(change)
}

// CanUndo reports whether past is non-empty.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

// CanRedo reports whether future is non-empty.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}

// Undo restores the last past entry, moving the current value onto the
// front of future. It is a no-op when past is empty and reports whether a
// step was taken.
func (m *Manager) Undo() bool {
	m.mu.Lock()
	if len(m.past) == 0 {
		m.mu.Unlock()
		return false
	}

	last := len(m.past) - 1
	restore := m.past[last]
	m.past = m.past[:last]
	m.future = append([]any{m.store.Get()}, m.future...)
	m.mu.Unlock()

	m.store.Replace(restore)

	m.mu.Lock()
	change := m.changeLocked(OpUndo)
	m.mu.Unlock()
	m.notify(change)
	return true
}

// Redo restores the first future entry and appends the restored value to
// the end of past. It is a no-op when future is empty and reports whether a
// step was taken.
func (m *Manager) Redo() bool {
	m.mu.Lock()
	if len(m.future) == 0 {
		m.mu.Unlock()
		return false
	}

	restore := m.future[0]
	m.future = m.future[1:]
	m.mu.Unlock()

	m.store.Replace(restore)
	current := m.store.Get()

	m.mu.Lock()
	m.past = append(m.past, current)
	m.trimLocked()
	change := m.changeLocked(OpRedo)
	m.mu.Unlock()

	m.notify(change)
	return true
}

// UndoN undoes up to n steps and returns how many were taken.
func (m *Manager) UndoN(n int) int {
	steps := 0
	for steps < n && m.Undo() {
		steps++
	}
	return steps
}

// RedoN redoes up to n steps and returns how many were taken.
func (m *Manager) RedoN(n int) int {
	steps := 0
	for steps < n && m.Redo() {
		steps++
	}
	return steps
}

// PurgeRedos discards future without touching past.
func (m *Manager) PurgeRedos() {
	m.mu.Lock()
	if len(m.future) == 0 {
		m.mu.Unlock()
		return
	}
	m.future = nil
	change := m.changeLocked(OpPurgeRedos)
	m.mu.Unlock()

	m.notify(change)
}

// UndoCount returns the number of past entries.
func (m *Manager) UndoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past)
}

// RedoCount returns the number of future entries.
func (m *Manager) RedoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future)
}

// Past returns a copy of past, newest first.
func (m *Manager) Past() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.past...)
}

// Future returns a copy of future; index 0 is the next redo.
func (m *Manager) Future() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.future...)
}

// trimLocked keeps the first maxUndos entries of past.
func (m *Manager) trimLocked() bool {
	limit := m.maxUndos
	if limit < 0 {
		limit = 0
	}
	if len(m.past) <= limit {
		return false
	}
	clear(m.past[limit:])
	m.past = m.past[:limit]
	return true
}

func (m *Manager) changeLocked(op Op) Change {
	return Change{Op: op, UndoCount: len(m.past), RedoCount: len(m.future)}
}

func (m *Manager) notify(c Change) {
	if m.publisher == nil {
		return
	}
	_ = m.publisher.Publish(context.Background(), event.NewNotification(topic.HistoryChanged, c))
}
