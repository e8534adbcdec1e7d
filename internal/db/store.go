// Package db holds the single current application state value.
package db

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
)

// Snapshot is the complete application state at one instant.
// The store never looks inside it.
type Snapshot = any

// ErrNilUpdate is returned by Update when fn is nil.
var ErrNilUpdate = errors.New("db: update function is nil")

// Store holds the current Snapshot.
type Store struct {
	mu        sync.RWMutex
	value     Snapshot
	publisher event.Publisher
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher announces every Replace on the given publisher under
// topic.DBReplaced.
func WithPublisher(p event.Publisher) Option {
	return func(s *Store) {
		s.publisher = p
	}
}

// New creates a store holding initial.
func New(initial Snapshot, opts ...Option) *Store {
	s := &Store{value: initial}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current value.
func (s *Store) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Replace swaps in v and notifies subscribers.
func (s *Store) Replace(v Snapshot) {
	s.mu.Lock()
	s.value = v
	pub := s.publisher
	s.mu.Unlock()

	if pub != nil {
		// Subscriber failures are reported by the bus to its own handlers;
		// a replace always succeeds.
		_ = pub.Publish(context.Background(), event.NewNotification(topic.DBReplaced, v))
	}
}

// Update applies a pure transition to the current value and replaces it on
// success. The value is left untouched when fn returns an error.
func (s *Store) Update(fn func(Snapshot) (Snapshot, error)) error {
	if fn == nil {
		return ErrNilUpdate
	}
	next, err := fn(s.Get())
	if err != nil {
		return err
	}
	s.Replace(next)
	return nil
}
