package dispatcher

// Config holds dispatcher configuration options.
type Config struct {
	// AsyncDispatch enables queued dispatch drained by a loop goroutine.
	AsyncDispatch bool

	// QueueSize is the buffer size of the event queue and result channel.
	// Only used when AsyncDispatch is true.
	QueueSize int

	// EnableMetrics enables dispatch timing and statistics collection.
	EnableMetrics bool

	// RecoverFromPanic wraps handler execution in panic recovery.
	RecoverFromPanic bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AsyncDispatch:    false,
		QueueSize:        100,
		EnableMetrics:    false,
		RecoverFromPanic: true,
	}
}

// WithAsyncDispatch returns a copy of the config with async dispatch enabled.
func (c Config) WithAsyncDispatch(queueSize int) Config {
	c.AsyncDispatch = true
	if queueSize > 0 {
		c.QueueSize = queueSize
	}
	return c
}

// WithMetrics returns a copy of the config with metrics enabled.
func (c Config) WithMetrics() Config {
	c.EnableMetrics = true
	return c
}

// WithPanicRecovery returns a copy of the config with panic recovery set.
func (c Config) WithPanicRecovery(recover bool) Config {
	c.RecoverFromPanic = recover
	return c
}
