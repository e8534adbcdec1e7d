package event

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/reframe/internal/event/topic"
)

// Bus delivers notifications to subscribers.
type Bus interface {
	Publisher

	Subscribe(pattern topic.Topic, fn HandlerFunc, opts ...SubscriptionOption) (Subscription, error)
	Unsubscribe(sub Subscription) error

	Stats() Stats
}

// Stats holds delivery counters.
type Stats struct {
	Published         uint64
	Delivered         uint64
	HandlerErrors     uint64
	HandlerPanics     uint64
	ActiveSubscribers int
}

type bus struct {
	mu      sync.RWMutex
	matcher *topic.Matcher
	// pattern -> subscriptions registered under it
	byPattern map[topic.Topic][]*subscription
	byID      map[string]*subscription
	seq       uint64

	published     atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

// NewBus creates an empty synchronous bus.
func NewBus() Bus {
	return &bus{
		matcher:   topic.NewMatcher(),
		byPattern: make(map[topic.Topic][]*subscription),
		byID:      make(map[string]*subscription),
	}
}

// Subscribe registers fn for every notification whose topic matches pattern.
func (b *bus) Subscribe(pattern topic.Topic, fn HandlerFunc, opts ...SubscriptionOption) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}

	cfg := defaultSubscriptionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: fn,
		config:  cfg,
		seq:     b.seq,
	}

	b.matcher.Add(pattern)
	b.byPattern[pattern] = append(b.byPattern[pattern], sub)
	b.byID[sub.id] = sub

	return sub, nil
}

// Unsubscribe cancels and removes a subscription.
func (b *bus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return ErrInvalidSubscription
	}
	sub.Cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.removeLocked(sub.ID()) {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (b *bus) removeLocked(id string) bool {
	s, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	subs := b.byPattern[s.pattern]
	for i, existing := range subs {
		if existing == s {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.byPattern, s.pattern)
		b.matcher.Remove(s.pattern)
	} else {
		b.byPattern[s.pattern] = subs
	}
	return true
}

// Publish delivers n synchronously to every matching subscription.
// Handler errors and recovered panics do not stop delivery; they are
// returned joined once every handler has run.
func (b *bus) Publish(ctx context.Context, n Notification) error {
	if !n.Topic.IsValid() || n.Topic.IsWildcard() {
		return ErrInvalidTopic
	}

	subs := b.match(n.Topic)
	b.published.Add(1)

	var errs []error
	for _, sub := range subs {
		if !sub.IsActive() {
			continue
		}
		if err := b.deliver(ctx, sub, n); err != nil {
			errs = append(errs, err)
			continue
		}
		b.delivered.Add(1)

		if sub.config.once {
			sub.Cancel()
			b.mu.Lock()
			b.removeLocked(sub.id)
			b.mu.Unlock()
		}
	}

	return errors.Join(errs...)
}

// match snapshots the matching subscriptions so handlers may subscribe or
// unsubscribe while a notification is being delivered.
func (b *bus) match(t topic.Topic) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var subs []*subscription
	for _, pattern := range b.matcher.Match(t) {
		subs = append(subs, b.byPattern[pattern]...)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].config.priority != subs[j].config.priority {
			return subs[i].config.priority < subs[j].config.priority
		}
		return subs[i].seq < subs[j].seq
	})
	return subs
}

func (b *bus) deliver(ctx context.Context, sub *subscription, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = &PanicError{
				SubscriptionID: sub.id,
				Topic:          string(n.Topic),
				Value:          r,
				Stack:          string(debug.Stack()),
			}
		}
	}()

	if herr := sub.handler(ctx, n); herr != nil {
		b.handlerErrors.Add(1)
		return &HandlerError{SubscriptionID: sub.id, Topic: string(n.Topic), Err: herr}
	}
	return nil
}

// Stats returns current delivery counters.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	active := len(b.byID)
	b.mu.RUnlock()

	return Stats{
		Published:         b.published.Load(),
		Delivered:         b.delivered.Load(),
		HandlerErrors:     b.handlerErrors.Load(),
		HandlerPanics:     b.handlerPanics.Load(),
		ActiveSubscribers: active,
	}
}
