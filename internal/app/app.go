package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"

	"github.com/dshills/reframe/internal/config"
	"github.com/dshills/reframe/internal/config/watcher"
	"github.com/dshills/reframe/internal/db"
	"github.com/dshills/reframe/internal/dispatcher"
	"github.com/dshills/reframe/internal/dispatcher/handler"
	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
	"github.com/dshills/reframe/internal/history"
	"github.com/dshills/reframe/internal/query"
	"github.com/dshills/reframe/internal/script"
	"github.com/dshills/reframe/internal/subs"
	"github.com/dshills/reframe/internal/undo"
)

// Built-in command and query names.
const (
	CmdSet   = "set"
	CmdDel   = "del"
	CmdSetIn = "set-in"
	CmdDelIn = "del-in"

	QueryValue = "value?"
	QueryKeys  = "keys?"
	QueryPath  = "path?"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// LogLevel overrides the configured level when non-empty.
	LogLevel string

	// MaxUndos overrides the configured history bound when non-negative.
	MaxUndos int

	// Watch reloads the configuration when its file changes.
	Watch bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer
}

// DefaultOptions returns options that leave the configuration untouched.
func DefaultOptions() Options {
	return Options{MaxUndos: -1}
}

// Application owns every component and the wiring between them.
type Application struct {
	mu   sync.Mutex
	opts Options
	cfg  *config.Config

	logger     *Logger
	bus        event.Bus
	store      *db.Store
	history    *history.Manager
	dispatcher *dispatcher.Dispatcher
	queries    *subs.Registry
	compiler   *query.Compiler
	scripts    *script.Engine
	undoable   *undo.UndoableHook
	watcher    *watcher.Watcher

	undos, redos *subs.Reaction
	reactions    map[string]*subs.Reaction
	busSubs      []event.Subscription
	closed       bool
}

// New loads the configuration and builds the application.
func New(opts Options) (*Application, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, NewComponentError("config", "load", err)
	}
	applyOverrides(cfg, opts)

	a := &Application{
		opts: opts,
		cfg:  cfg,
		logger: NewLogger(LoggerConfig{
			Level:  ParseLogLevel(cfg.Logging.Level),
			Format: cfg.Logging.Format,
			Output: opts.LogOutput,
		}),
		reactions: make(map[string]*subs.Reaction),
	}

	a.bus = event.NewBus()
	a.store = db.New(map[string]any{}, db.WithPublisher(a.bus))
	a.history = history.New(a.store,
		history.WithMaxUndos(cfg.History.MaxUndos),
		history.WithPublisher(a.bus),
	)
	a.dispatcher = dispatcher.New(dispatcherConfig(cfg), a.store)
	a.queries = subs.NewRegistry(a.store, a.bus)
	a.compiler = query.NewCompiler(query.WithErrorHandler(func(err error) {
		a.logger.WithComponent("query").Warn("query failed", "error", err)
	}))
	a.undoable = undo.NewUndoableHook(a.history, CmdSet, CmdDel, CmdSetIn, CmdDelIn)

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher.Start()

	if opts.Watch && cfg.Path != "" {
		if err := a.startWatcher(cfg.Path); err != nil {
			a.Close()
			return nil, NewComponentError("config", "watch", err)
		}
	}

	a.logger.Debug("application ready",
		"config", cfg.Path,
		"maxUndos", cfg.History.MaxUndos,
		"async", cfg.Dispatch.Async,
	)
	return a, nil
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.MaxUndos >= 0 {
		cfg.History.MaxUndos = opts.MaxUndos
	}
}

func dispatcherConfig(cfg *config.Config) dispatcher.Config {
	dc := dispatcher.DefaultConfig().WithPanicRecovery(cfg.Dispatch.RecoverFromPanic)
	if cfg.Dispatch.Async {
		dc = dc.WithAsyncDispatch(cfg.Dispatch.QueueSize)
	}
	if cfg.Dispatch.Metrics {
		dc = dc.WithMetrics()
	}
	return dc
}

func (a *Application) wire() error {
	a.dispatcher.RegisterDB(CmdSet, setValue)
	a.dispatcher.RegisterDB(CmdDel, deleteValue)
	a.dispatcher.RegisterDB(CmdSetIn, setPath)
	a.dispatcher.RegisterDB(CmdDelIn, deletePath)
	a.dispatcher.RegisterPreHook(a.undoable)
	a.dispatcher.RegisterPostHook(dispatcher.NewLoggingHook(a.logger.WithComponent("dispatcher")))

	if err := undo.Register(a.dispatcher, a.queries, a.history); err != nil {
		return NewComponentError("undo", "register", err)
	}
	if err := a.queries.Register(QueryValue, lookupValue); err != nil {
		return NewComponentError("subs", "register", err)
	}
	if err := a.queries.Register(QueryKeys, listKeys); err != nil {
		return NewComponentError("subs", "register", err)
	}
	if err := a.queries.Register(QueryPath, lookupPath); err != nil {
		return NewComponentError("subs", "register", err)
	}
	if err := a.registerQueries(a.cfg.Queries); err != nil {
		return err
	}
	if err := a.loadScripts(a.cfg.Scripts); err != nil {
		return err
	}

	var err error
	if a.undos, err = a.queries.Subscribe(undo.QueryUndos); err != nil {
		return NewComponentError("subs", "subscribe", err)
	}
	if a.redos, err = a.queries.Subscribe(undo.QueryRedos); err != nil {
		return NewComponentError("subs", "subscribe", err)
	}

	trace := a.logger.WithComponent("bus")
	sub, err := a.bus.Subscribe(topic.WildcardMulti, func(_ context.Context, n event.Notification) error {
		if c, ok := n.Payload.(history.Change); ok {
			trace.Debug("notification", "topic", n.Topic, "op", c.Op, "undos", c.UndoCount, "redos", c.RedoCount)
			return nil
		}
		trace.Debug("notification", "topic", n.Topic)
		return nil
	}, event.WithPriority(event.PriorityLow))
	if err != nil {
		return NewComponentError("bus", "subscribe", err)
	}
	a.busSubs = append(a.busSubs, sub)
	return nil
}

func (a *Application) registerQueries(exprs map[string]string) error {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fn, err := a.compiler.Compile(exprs[name])
		if err != nil {
			return NewComponentError("query", "compile "+name, err)
		}
		if err := a.queries.Register(name, fn); err != nil {
			return NewComponentError("query", "register "+name, err)
		}
	}
	return nil
}

func (a *Application) loadScripts(cfg config.ScriptsConfig) error {
	if len(cfg.Files) == 0 && len(cfg.Commands) == 0 {
		return nil
	}

	a.scripts = script.NewEngine()
	for _, file := range cfg.Files {
		if err := a.scripts.LoadFile(file); err != nil {
			return NewComponentError("script", "load", err)
		}
	}

	for name, fn := range cfg.Commands {
		if !a.scripts.HasFunction(fn) {
			return NewComponentError("script", "bind "+name, fmt.Errorf("%w: %s", script.ErrFunctionNotFound, fn))
		}
		a.dispatcher.RegisterDB(name, a.scripts.Handler(fn))
	}
	a.undoable.Add(cfg.Undoable...)
	return nil
}

func (a *Application) startWatcher(path string) error {
	log := a.logger.WithComponent("watcher")
	w, err := watcher.New(watcher.WithErrorHandler(func(err error) {
		log.Warn("watch error", "error", err)
	}))
	if err != nil {
		return err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return err
	}
	w.OnChange(func(ev watcher.Event) {
		if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
			return
		}
		if err := a.Reload(); err != nil {
			log.Warn("config reload failed", "path", ev.Path, "error", err)
			return
		}
		log.Info("config reloaded", "path", ev.Path)
	})
	w.Start()
	a.watcher = w
	return nil
}

// Reload re-reads the configuration file and applies the history bound,
// log level and query definitions. Scripts are not reloaded.
func (a *Application) Reload() error {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, a.opts)

	if err := a.registerQueries(cfg.Queries); err != nil {
		return err
	}
	// Runs under the dispatcher's execution lock so a reload never races a
	// command that is touching history.
	if r := a.dispatcher.DispatchSync(handler.NewEvent(undo.CmdSetMaxUndos, cfg.History.MaxUndos)); r.IsError() {
		return r.Error
	}
	a.logger.SetLevel(ParseLogLevel(cfg.Logging.Level))

	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()

	return a.bus.Publish(context.Background(), event.NewNotification(topic.ConfigReloaded, cfg))
}

// Dispatch runs a command and returns its result. With async dispatch the
// command is queued and Dispatch waits for its result.
func (a *Application) Dispatch(name string, args ...any) handler.Result {
	ev := handler.NewEvent(name, args...)
	if !a.dispatcher.Config().AsyncDispatch {
		return a.dispatcher.DispatchSync(ev)
	}

	r, err := a.dispatcher.DispatchWait(context.Background(), ev)
	if err != nil {
		return handler.Error(err)
	}
	return r
}

// Close stops every component. It is safe to call more than once.
func (a *Application) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	reactions := a.reactions
	a.reactions = nil
	a.mu.Unlock()

	if a.watcher != nil {
		_ = a.watcher.Stop()
	}
	a.dispatcher.Stop()

	for _, rx := range reactions {
		rx.Dispose()
	}
	for _, rx := range []*subs.Reaction{a.undos, a.redos} {
		if rx != nil {
			rx.Dispose()
		}
	}
	for _, sub := range a.busSubs {
		_ = a.bus.Unsubscribe(sub)
	}
	if a.scripts != nil {
		a.scripts.Close()
	}
}

// Config returns the active configuration.
func (a *Application) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Store returns the application state.
func (a *Application) Store() *db.Store { return a.store }

// History returns the undo history.
func (a *Application) History() *history.Manager { return a.history }

// Queries returns the query registry.
func (a *Application) Queries() *subs.Registry { return a.queries }

// Bus returns the notification bus.
func (a *Application) Bus() event.Bus { return a.bus }

// Logger returns the application logger.
func (a *Application) Logger() *Logger { return a.logger }

var errNotMap = errors.New("db is not a map")

func asMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %T", errNotMap, v)
	}
}

func setValue(v any, ev handler.Event) (any, error) {
	key, _ := ev.Arg(0).(string)
	if key == "" {
		return nil, fmt.Errorf("%w: set <key> <value>", ErrUsage)
	}
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}
	next := maps.Clone(m)
	next[key] = ev.Arg(1)
	return next, nil
}

func deleteValue(v any, ev handler.Event) (any, error) {
	key, _ := ev.Arg(0).(string)
	if key == "" {
		return nil, fmt.Errorf("%w: del <key>", ErrUsage)
	}
	m, err := asMap(v)
	if err != nil {
		return nil, err
	}
	if _, ok := m[key]; !ok {
		return v, nil
	}
	next := maps.Clone(m)
	delete(next, key)
	return next, nil
}

func lookupValue(v any, args []any) any {
	m, ok := v.(map[string]any)
	if !ok || len(args) == 0 {
		return nil
	}
	key := fmt.Sprint(args[0])
	return m[key]
}

func listKeys(v any, _ []any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return []string{}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setPath(v any, ev handler.Event) (any, error) {
	path, _ := ev.Arg(0).(string)
	if path == "" {
		return nil, fmt.Errorf("%w: set-in <path> <value>", ErrUsage)
	}
	return db.SetIn(v, path, ev.Arg(1))
}

func deletePath(v any, ev handler.Event) (any, error) {
	path, _ := ev.Arg(0).(string)
	if path == "" {
		return nil, fmt.Errorf("%w: del-in <path>", ErrUsage)
	}
	return db.DeleteIn(v, path)
}

func lookupPath(v any, args []any) any {
	if len(args) == 0 {
		return nil
	}
	out, err := db.GetIn(v, fmt.Sprint(args[0]))
	if err != nil {
		return nil
	}
	return out
}
