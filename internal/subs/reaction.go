package subs

import (
	"context"
	"reflect"
	"sync"

	"github.com/dshills/reframe/internal/event"
)

// WatchFunc is called with the previous and new value of a reaction.
type WatchFunc func(old, new any)

// Reaction is a cached, self-updating query result.
type Reaction struct {
	mu sync.Mutex

	// refreshMu orders compute and commit so an older result never
	// overwrites a newer one.
	refreshMu sync.Mutex

	name     string
	args     []any
	fn       QueryFunc
	source   Source
	bus      event.Bus
	value    any
	watchers []WatchFunc
	subs     []event.Subscription
	disposed bool
}

// Name returns the query name.
func (rx *Reaction) Name() string {
	return rx.name
}

// Value returns the cached value.
func (rx *Reaction) Value() any {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	return rx.value
}

// Bool returns the cached value as a bool; non-bool values report false.
func (rx *Reaction) Bool() bool {
	b, _ := rx.Value().(bool)
	return b
}

// Watch registers fn to be called after the value changes. fn runs while
// the reaction is refreshing and must not refresh it again.
func (rx *Reaction) Watch(fn WatchFunc) error {
	rx.mu.Lock()
	defer rx.mu.Unlock()
	if rx.disposed {
		return ErrDisposed
	}
	rx.watchers = append(rx.watchers, fn)
	return nil
}

// Dispose detaches the reaction from the bus. Its value is frozen.
func (rx *Reaction) Dispose() {
	rx.mu.Lock()
	if rx.disposed {
		rx.mu.Unlock()
		return
	}
	rx.disposed = true
	subs := rx.subs
	rx.subs = nil
	rx.watchers = nil
	rx.mu.Unlock()

	for _, sub := range subs {
		_ = rx.bus.Unsubscribe(sub)
	}
}

// Refresh recomputes the value now and notifies watchers if it changed.
func (rx *Reaction) Refresh() {
	rx.refreshMu.Lock()
	defer rx.refreshMu.Unlock()

	next := rx.compute()

	rx.mu.Lock()
	if rx.disposed {
		rx.mu.Unlock()
		return
	}
	old := rx.value
	if reflect.DeepEqual(old, next) {
		rx.mu.Unlock()
		return
	}
	rx.value = next
	watchers := append([]WatchFunc(nil), rx.watchers...)
	rx.mu.Unlock()

	for _, w := range watchers {
		w(old, next)
	}
}

func (rx *Reaction) compute() any {
	return rx.fn(rx.source.Get(), rx.args)
}

func (rx *Reaction) onNotification(context.Context, event.Notification) error {
	rx.Refresh()
	return nil
}
