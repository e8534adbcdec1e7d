package event

import (
	"sync/atomic"

	"github.com/dshills/reframe/internal/event/topic"
)

// Subscription is a handle returned by Bus.Subscribe.
type Subscription interface {
	// ID returns the unique subscription identifier.
	ID() string

	// Topic returns the subscribed pattern.
	Topic() topic.Topic

	// IsActive reports whether the subscription still receives notifications.
	IsActive() bool

	// Cancel stops delivery. It does not remove the subscription from the bus;
	// use Bus.Unsubscribe for that.
	Cancel()
}

type subscription struct {
	id        string
	pattern   topic.Topic
	handler   HandlerFunc
	config    subscriptionConfig
	seq       uint64
	cancelled atomic.Bool
}

func (s *subscription) ID() string         { return s.id }
func (s *subscription) Topic() topic.Topic { return s.pattern }
func (s *subscription) IsActive() bool     { return !s.cancelled.Load() }
func (s *subscription) Cancel()            { s.cancelled.Store(true) }
