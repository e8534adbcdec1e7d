package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
)

func TestSubscribeValidation(t *testing.T) {
	b := event.NewBus()

	if _, err := b.Subscribe("db.replaced", nil); !errors.Is(err, event.ErrNilHandler) {
		t.Errorf("expected ErrNilHandler, got %v", err)
	}
	if _, err := b.Subscribe("", func(context.Context, event.Notification) error { return nil }); !errors.Is(err, event.ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
}

func TestPublishDeliversToMatchingPatterns(t *testing.T) {
	b := event.NewBus()
	ctx := context.Background()

	var exact, wildcard, other int
	mustSubscribe(t, b, "db.replaced", func(context.Context, event.Notification) error { exact++; return nil })
	mustSubscribe(t, b, "**", func(context.Context, event.Notification) error { wildcard++; return nil })
	mustSubscribe(t, b, "history.changed", func(context.Context, event.Notification) error { other++; return nil })

	if err := b.Publish(ctx, event.NewNotification(topic.DBReplaced, nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if exact != 1 || wildcard != 1 || other != 0 {
		t.Errorf("exact=%d wildcard=%d other=%d", exact, wildcard, other)
	}

	stats := b.Stats()
	if stats.Published != 1 || stats.Delivered != 2 || stats.ActiveSubscribers != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPublishPriorityOrder(t *testing.T) {
	b := event.NewBus()

	var order []string
	record := func(name string) event.HandlerFunc {
		return func(context.Context, event.Notification) error {
			order = append(order, name)
			return nil
		}
	}

	mustSubscribe(t, b, "history.changed", record("low"), event.WithPriority(event.PriorityLow))
	mustSubscribe(t, b, "history.*", record("high"), event.WithPriority(event.PriorityHigh))
	mustSubscribe(t, b, "history.changed", record("normal"))

	_ = b.Publish(context.Background(), event.NewNotification(topic.HistoryChanged, nil))

	want := []string{"high", "normal", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestPublishCollectsErrorsAndPanics(t *testing.T) {
	b := event.NewBus()
	boom := errors.New("boom")

	var reached bool
	mustSubscribe(t, b, "db.replaced", func(context.Context, event.Notification) error { return boom })
	mustSubscribe(t, b, "db.replaced", func(context.Context, event.Notification) error { panic("kaboom") })
	mustSubscribe(t, b, "db.replaced", func(context.Context, event.Notification) error { reached = true; return nil })

	err := b.Publish(context.Background(), event.NewNotification(topic.DBReplaced, nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected handler error to be joined, got %v", err)
	}
	if !errors.Is(err, event.ErrHandlerPanic) {
		t.Errorf("expected panic error to be joined, got %v", err)
	}
	if !reached {
		t.Error("later handlers should still run")
	}

	stats := b.Stats()
	if stats.HandlerErrors != 1 || stats.HandlerPanics != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPublishRejectsWildcardTopic(t *testing.T) {
	b := event.NewBus()
	err := b.Publish(context.Background(), event.NewNotification("db.*", nil))
	if !errors.Is(err, event.ErrInvalidTopic) {
		t.Errorf("expected ErrInvalidTopic, got %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := event.NewBus()

	calls := 0
	sub := mustSubscribe(t, b, "db.replaced", func(context.Context, event.Notification) error { calls++; return nil })

	if err := b.Unsubscribe(sub); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if sub.IsActive() {
		t.Error("subscription should be inactive")
	}
	if err := b.Unsubscribe(sub); !errors.Is(err, event.ErrSubscriptionNotFound) {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}

	_ = b.Publish(context.Background(), event.NewNotification(topic.DBReplaced, nil))
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestOnceSubscription(t *testing.T) {
	b := event.NewBus()

	calls := 0
	mustSubscribe(t, b, "config.reloaded", func(context.Context, event.Notification) error { calls++; return nil }, event.Once())

	for i := 0; i < 3; i++ {
		_ = b.Publish(context.Background(), event.NewNotification(topic.ConfigReloaded, nil))
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if b.Stats().ActiveSubscribers != 0 {
		t.Error("once subscription should be removed")
	}
}

func mustSubscribe(t *testing.T, b event.Bus, pattern topic.Topic, fn event.HandlerFunc, opts ...event.SubscriptionOption) event.Subscription {
	t.Helper()
	sub, err := b.Subscribe(pattern, fn, opts...)
	if err != nil {
		t.Fatalf("Subscribe(%s): %v", pattern, err)
	}
	return sub
}
