package event

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*subscriptionConfig)

type subscriptionConfig struct {
	priority Priority
	once     bool
}

func defaultSubscriptionConfig() subscriptionConfig {
	return subscriptionConfig{priority: PriorityNormal}
}

// WithPriority sets the handler priority. Lower runs first.
func WithPriority(p Priority) SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.priority = p
	}
}

// Once cancels the subscription after its first successful delivery.
func Once() SubscriptionOption {
	return func(c *subscriptionConfig) {
		c.once = true
	}
}
