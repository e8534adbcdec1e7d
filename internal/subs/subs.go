// Package subs provides named, reactive queries over the application state.
//
// A query is registered once with the bus topics that invalidate it.
// Subscribing yields a Reaction that caches the query's value and recomputes
// it synchronously whenever a matching notification is published, so a
// reaction never reports a stale value after the operation that changed its
// inputs has completed. Watchers are pushed the new value only when it
// actually changed.
package subs

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
)

// QueryFunc computes a value from the current db and subscription args.
type QueryFunc func(db any, args []any) any

// Source provides the current db.
type Source interface {
	Get() any
}

// Errors returned by the registry.
var (
	ErrUnknownQuery = errors.New("subs: unknown query")
	ErrNilQuery     = errors.New("subs: query function is nil")
	ErrDisposed     = errors.New("subs: reaction disposed")
)

type query struct {
	fn     QueryFunc
	topics []topic.Topic
}

// Registry holds registered queries and creates reactions.
type Registry struct {
	mu      sync.RWMutex
	source  Source
	bus     event.Bus
	queries map[string]query
}

// NewRegistry creates a registry reading from source and listening on bus.
func NewRegistry(source Source, bus event.Bus) *Registry {
	return &Registry{
		source:  source,
		bus:     bus,
		queries: make(map[string]query),
	}
}

// Register adds or replaces a query. topics lists the notifications that
// invalidate it; when empty the query depends on topic.DBReplaced.
// Existing reactions keep the function they were created with.
func (r *Registry) Register(name string, fn QueryFunc, topics ...topic.Topic) error {
	if fn == nil {
		return ErrNilQuery
	}
	if len(topics) == 0 {
		topics = []topic.Topic{topic.DBReplaced}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[name] = query{fn: fn, topics: append([]topic.Topic(nil), topics...)}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.queries[name]
	return ok
}

// Names returns the registered query names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.queries))
	for name := range r.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query evaluates name once against the current db without caching.
func (r *Registry) Query(name string, args ...any) (any, error) {
	q, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return q.fn(r.source.Get(), args), nil
}

// Subscribe creates a reaction for name with args.
func (r *Registry) Subscribe(name string, args ...any) (*Reaction, error) {
	q, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	rx := &Reaction{
		name:   name,
		args:   args,
		fn:     q.fn,
		source: r.source,
		bus:    r.bus,
	}
	rx.value = rx.compute()

	if r.bus != nil {
		for _, t := range q.topics {
			sub, err := r.bus.Subscribe(t, rx.onNotification, event.WithPriority(event.PriorityHigh))
			if err != nil {
				rx.Dispose()
				return nil, fmt.Errorf("subscribe %s to %s: %w", name, t, err)
			}
			rx.subs = append(rx.subs, sub)
		}
	}

	return rx, nil
}

func (r *Registry) lookup(name string) (query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.queries[name]
	if !ok {
		return query{}, fmt.Errorf("%w: %s", ErrUnknownQuery, name)
	}
	return q, nil
}
