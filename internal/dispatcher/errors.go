package dispatcher

import "errors"

// Dispatcher errors.
var (
	// ErrNoHandler indicates no handler was found for a command.
	ErrNoHandler = errors.New("dispatcher: no handler for command")

	// ErrDispatcherStopped indicates the dispatcher has been stopped.
	ErrDispatcherStopped = errors.New("dispatcher: dispatcher is stopped")

	// ErrCancelled indicates the command was cancelled by a hook.
	ErrCancelled = errors.New("dispatcher: command cancelled by hook")

	// ErrPanic indicates the handler panicked.
	ErrPanic = errors.New("dispatcher: handler panic")

	// ErrInvalidEvent indicates the event has no name.
	ErrInvalidEvent = errors.New("dispatcher: invalid event")

	// ErrAsyncNotEnabled indicates async dispatch is not enabled.
	ErrAsyncNotEnabled = errors.New("dispatcher: async dispatch not enabled")

	// ErrQueueFull indicates the async queue cannot take more events.
	ErrQueueFull = errors.New("dispatcher: queue full")
)
