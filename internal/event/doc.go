// Package event provides the synchronous notification bus that ties the
// store, the history manager and reactive subscriptions together.
//
// Publishers send a Notification on a topic; every subscription whose pattern
// matches the topic is invoked in the publisher's goroutine, in priority
// order, before Publish returns. That ordering is what lets a subscription
// recompute its value before the operation that caused the change completes.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	sub, err := bus.Subscribe("history.*", func(ctx context.Context, n event.Notification) error {
//	    fmt.Println("history changed:", n.Payload)
//	    return nil
//	})
//	if err != nil {
//	    return err
//	}
//	defer bus.Unsubscribe(sub)
//
//	_ = bus.Publish(ctx, event.NewNotification(topic.HistoryChanged, nil))
//
// # Priority Ordering
//
// Lower priority values run first:
//
//   - Critical (0): internal bookkeeping
//   - High (100): subscription recomputation
//   - Normal (200): default
//   - Low (300): logging and metrics
package event
