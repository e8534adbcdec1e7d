package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/reframe/internal/dispatcher/handler"
)

// Dispatcher routes commands to handlers and coordinates execution.
type Dispatcher struct {
	mu sync.RWMutex

	// execMu serializes command execution.
	execMu sync.Mutex

	registry *Registry
	store    handler.Store
	config   Config
	metrics  *Metrics

	preHooks  []PreDispatchHook
	postHooks []PostDispatchHook

	queue    chan queued
	results  chan handler.Result
	done     chan struct{}
	loopDone chan struct{}
	started  bool
	stopped  bool
}

// New creates a dispatcher over store with the given configuration.
func New(config Config, store handler.Store) *Dispatcher {
	d := &Dispatcher{
		registry: NewRegistry(),
		store:    store,
		config:   config,
		done:     make(chan struct{}),
	}

	if config.AsyncDispatch {
		size := config.QueueSize
		if size <= 0 {
			size = 100
		}
		d.queue = make(chan queued, size)
		d.results = make(chan handler.Result, size)
	}

	if config.EnableMetrics {
		d.metrics = NewMetrics()
	}

	return d
}

// NewWithDefaults creates a dispatcher with default configuration.
func NewWithDefaults(store handler.Store) *Dispatcher {
	return New(DefaultConfig(), store)
}

// RegisterHandler registers a handler for a command name.
func (d *Dispatcher) RegisterHandler(name string, h handler.Handler) {
	d.registry.Register(name, h)
}

// RegisterHandlerFunc registers an impure handler function.
func (d *Dispatcher) RegisterHandlerFunc(name string, fn func(handler.Event, *handler.Context) handler.Result) {
	d.registry.Register(name, handler.NewHandlerFunc(fn))
}

// RegisterDB registers a pure db transition.
func (d *Dispatcher) RegisterDB(name string, fn handler.DBFunc) {
	d.registry.Register(name, handler.NewDBHandler(fn))
}

// UnregisterHandler removes the handlers for a command name.
func (d *Dispatcher) UnregisterHandler(name string) {
	d.registry.Unregister(name)
}

// RegisterPreHook registers a pre-dispatch hook.
func (d *Dispatcher) RegisterPreHook(hook PreDispatchHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preHooks = append(d.preHooks, hook)
}

// RegisterPostHook registers a post-dispatch hook.
func (d *Dispatcher) RegisterPostHook(hook PostDispatchHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postHooks = append(d.postHooks, hook)
}

// DispatchSync runs a command to completion.
func (d *Dispatcher) DispatchSync(ev handler.Event) handler.Result {
	if ev.Name == "" {
		return handler.Error(ErrInvalidEvent)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	d.execMu.Lock()
	defer d.execMu.Unlock()

	result := d.dispatchLocked(ev)
	result.EventID = ev.ID
	return result
}

func (d *Dispatcher) dispatchLocked(ev handler.Event) handler.Result {
	ctx := handler.NewContext(d.store)

	if !d.runPreHooks(&ev, ctx) {
		result := handler.Error(ErrCancelled)
		result.Status = handler.StatusCancelled
		d.record(ev.Name, ctx, result)
		return result
	}

	h := d.registry.Get(ev.Name)
	if h == nil {
		result := handler.Error(fmt.Errorf("%w: %s", ErrNoHandler, ev.Name))
		d.runPostHooks(&ev, ctx, &result)
		d.record(ev.Name, ctx, result)
		return result
	}

	var result handler.Result
	if d.config.RecoverFromPanic {
		result = d.executeWithRecovery(h, ev, ctx)
	} else {
		result = h.Handle(ev, ctx)
	}

	d.runPostHooks(&ev, ctx, &result)
	d.record(ev.Name, ctx, result)
	return result
}

func (d *Dispatcher) record(name string, ctx *handler.Context, result handler.Result) {
	if d.metrics != nil {
		d.metrics.RecordDispatch(name, ctx.Elapsed(), result.Status)
	}
}

// executeWithRecovery executes a handler with panic recovery.
func (d *Dispatcher) executeWithRecovery(h handler.Handler, ev handler.Event, ctx *handler.Context) (result handler.Result) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)

			result = handler.Error(fmt.Errorf("%w for %s: %v\n%s", ErrPanic, ev.Name, r, stack[:n]))

			if d.metrics != nil {
				d.metrics.RecordPanic(ev.Name)
			}
		}
	}()

	return h.Handle(ev, ctx)
}

func (d *Dispatcher) runPreHooks(ev *handler.Event, ctx *handler.Context) bool {
	d.mu.RLock()
	hooks := make([]PreDispatchHook, len(d.preHooks))
	copy(hooks, d.preHooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		if !h.PreDispatch(ev, ctx) {
			return false
		}
	}
	return true
}

func (d *Dispatcher) runPostHooks(ev *handler.Event, ctx *handler.Context, result *handler.Result) {
	d.mu.RLock()
	hooks := make([]PostDispatchHook, len(d.postHooks))
	copy(hooks, d.postHooks)
	d.mu.RUnlock()

	for _, h := range hooks {
		h.PostDispatch(ev, ctx, result)
	}
}

// queued is an event waiting for the async loop. A non-nil reply receives
// the result instead of the shared results channel.
type queued struct {
	ev    handler.Event
	reply chan handler.Result
}

// Dispatch queues a command for the async loop.
// It never blocks: a full queue returns ErrQueueFull.
func (d *Dispatcher) Dispatch(ev handler.Event) error {
	return d.enqueue(ev, nil)
}

// DispatchWait queues a command and waits for its result. It returns
// ErrDispatcherStopped when the dispatcher stops without running the
// command, and ctx.Err() when ctx is done first.
func (d *Dispatcher) DispatchWait(ctx context.Context, ev handler.Event) (handler.Result, error) {
	reply := make(chan handler.Result, 1)
	if err := d.enqueue(ev, reply); err != nil {
		return handler.Result{}, err
	}

	d.mu.RLock()
	loopDone := d.loopDone
	d.mu.RUnlock()

	// Without a running loop nothing drains the queue after Stop.
	stopped := loopDone
	if stopped == nil {
		stopped = d.done
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return handler.Result{}, ctx.Err()
	case <-stopped:
	}

	if loopDone == nil {
		d.mu.RLock()
		loopDone = d.loopDone
		d.mu.RUnlock()
		if loopDone != nil {
			<-loopDone
		}
	}
	select {
	case r := <-reply:
		return r, nil
	default:
		return handler.Result{}, ErrDispatcherStopped
	}
}

func (d *Dispatcher) enqueue(ev handler.Event, reply chan handler.Result) error {
	if !d.config.AsyncDispatch {
		return ErrAsyncNotEnabled
	}
	if ev.Name == "" {
		return ErrInvalidEvent
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case d.queue <- queued{ev: ev, reply: reply}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start starts the async dispatch loop (if enabled).
func (d *Dispatcher) Start() {
	if !d.config.AsyncDispatch {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	d.loopDone = make(chan struct{})
	go d.dispatchLoop()
}

// Stop stops the async loop after draining events already queued.
// Calling Stop more than once is safe.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.done)
	loopDone := d.loopDone
	d.mu.Unlock()

	if loopDone != nil {
		<-loopDone
	}
}

func (d *Dispatcher) dispatchLoop() {
	defer close(d.loopDone)

	for {
		select {
		case q := <-d.queue:
			d.deliver(q, d.DispatchSync(q.ev))
		case <-d.done:
			for {
				select {
				case q := <-d.queue:
					d.deliver(q, d.DispatchSync(q.ev))
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(q queued, result handler.Result) {
	if q.reply != nil {
		q.reply <- result
		return
	}
	select {
	case d.results <- result:
	default:
		// result channel full, drop result
	}
}

// Results returns results of commands queued with Dispatch, or nil when
// async is disabled. Results are dropped when nobody drains the channel.
func (d *Dispatcher) Results() <-chan handler.Result {
	return d.results
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Metrics returns the metrics collector (may be nil if disabled).
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}
