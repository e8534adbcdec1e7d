package event

import (
	"context"
	"time"

	"github.com/dshills/reframe/internal/event/topic"
)

// Notification is a change announcement delivered on the bus.
type Notification struct {
	// Topic identifies what changed.
	Topic topic.Topic

	// Payload carries topic-specific data. May be nil.
	Payload any

	// Timestamp is when the notification was created.
	Timestamp time.Time
}

// NewNotification creates a notification stamped with the current time.
func NewNotification(t topic.Topic, payload any) Notification {
	return Notification{
		Topic:     t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// HandlerFunc receives notifications.
type HandlerFunc func(ctx context.Context, n Notification) error

// Publisher is the narrow interface components use to announce changes.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Priority determines handler execution order.
// Lower values execute first.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 100
	PriorityNormal   Priority = 200
	PriorityLow      Priority = 300
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p <= PriorityCritical:
		return "critical"
	case p <= PriorityHigh:
		return "high"
	case p <= PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}
