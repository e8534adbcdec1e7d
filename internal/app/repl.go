package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dshills/reframe/internal/dispatcher/handler"
	"github.com/dshills/reframe/internal/undo"
)

// Run reads commands from in, one per line, until EOF, quit or ctx is done.
// Command failures are reported on out and do not stop the loop. A quit
// command returns ErrQuit.
func (a *Application) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := &syncWriter{w: out}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			if err := a.Exec(line, w); err != nil {
				if errors.Is(err, ErrQuit) {
					return err
				}
				fmt.Fprintf(w, "error: %v\n", err)
			}
		}
	}
}

// Exec runs one command line, writing its output to out.
func (a *Application) Exec(line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "quit", "exit":
		return ErrQuit
	case "help":
		a.printHelp(out)
		return nil
	case "show":
		return a.show(out)
	case "history":
		a.printHistory(out)
		return nil
	case "get":
		return a.get(rest, out)
	case "eval":
		return a.eval(rest, out)
	case "sub":
		return a.subscribe(rest, out)
	case "unsub":
		return a.unsubscribe(rest, out)
	case "stats":
		a.printStats(out)
		return nil
	case CmdSet, CmdSetIn:
		key, value, _ := strings.Cut(rest, " ")
		if key == "" {
			return fmt.Errorf("%w: %s <key> <value>", ErrUsage, name)
		}
		return report(out, a.Dispatch(name, key, parseArg(strings.TrimSpace(value))))
	case "max-undos":
		return report(out, a.Dispatch(undo.CmdSetMaxUndos, parseArgs(rest)...))
	default:
		return report(out, a.Dispatch(name, parseArgs(rest)...))
	}
}

func report(out io.Writer, r handler.Result) error {
	switch r.Status {
	case handler.StatusOK:
		if r.Message != "" {
			fmt.Fprintln(out, r.Message)
		}
		return nil
	case handler.StatusNoOp:
		msg := r.Message
		if msg == "" {
			msg = "no-op"
		}
		fmt.Fprintln(out, msg)
		return nil
	case handler.StatusCancelled:
		fmt.Fprintln(out, "cancelled")
		return nil
	default:
		if r.Error != nil {
			return r.Error
		}
		return errors.New(r.Message)
	}
}

func (a *Application) show(out io.Writer) error {
	data, err := yaml.Marshal(a.store.Get())
	if err != nil {
		return fmt.Errorf("encoding db: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func (a *Application) printHistory(out io.Writer) {
	fmt.Fprintf(out, "%s %v (%d)\n", undo.QueryUndos, a.undos.Value(), a.history.UndoCount())
	fmt.Fprintf(out, "%s %v (%d)\n", undo.QueryRedos, a.redos.Value(), a.history.RedoCount())
	fmt.Fprintf(out, "max-undos %d\n", a.history.MaxUndos())
}

func (a *Application) get(rest string, out io.Writer) error {
	args := parseArgs(rest)
	if len(args) == 0 {
		return fmt.Errorf("%w: get <query> [args...]", ErrUsage)
	}
	name := fmt.Sprint(args[0])
	v, err := a.queries.Query(name, args[1:]...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s = %v\n", name, v)
	return nil
}

func (a *Application) eval(expr string, out io.Writer) error {
	if expr == "" {
		return fmt.Errorf("%w: eval <expression>", ErrUsage)
	}
	v, err := a.compiler.Eval(expr, a.store.Get())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, v)
	return nil
}

// subscribe keeps a reaction for the query and prints each change.
func (a *Application) subscribe(rest string, out io.Writer) error {
	args := parseArgs(rest)
	if len(args) == 0 {
		return fmt.Errorf("%w: sub <query> [args...]", ErrUsage)
	}
	name := fmt.Sprint(args[0])

	a.mu.Lock()
	_, exists := a.reactions[rest]
	a.mu.Unlock()
	if exists {
		return fmt.Errorf("already subscribed to %s", rest)
	}

	rx, err := a.queries.Subscribe(name, args[1:]...)
	if err != nil {
		return err
	}
	if err := rx.Watch(func(old, cur any) {
		fmt.Fprintf(out, "[%s] %v -> %v\n", rest, old, cur)
	}); err != nil {
		rx.Dispose()
		return err
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		rx.Dispose()
		return nil
	}
	a.reactions[rest] = rx
	a.mu.Unlock()

	fmt.Fprintf(out, "[%s] %v\n", rest, rx.Value())
	return nil
}

func (a *Application) unsubscribe(rest string, out io.Writer) error {
	a.mu.Lock()
	rx, ok := a.reactions[rest]
	delete(a.reactions, rest)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("not subscribed to %q", rest)
	}
	rx.Dispose()
	fmt.Fprintf(out, "unsubscribed %s\n", rest)
	return nil
}

func (a *Application) printStats(out io.Writer) {
	bs := a.bus.Stats()
	fmt.Fprintf(out, "notifications published=%d delivered=%d errors=%d subscribers=%d\n",
		bs.Published, bs.Delivered, bs.HandlerErrors, bs.ActiveSubscribers)

	m := a.dispatcher.Metrics()
	if m == nil {
		fmt.Fprintln(out, "dispatch metrics disabled")
		return
	}
	fmt.Fprintf(out, "dispatches=%d errors=%d panics=%d avg=%s\n",
		m.TotalDispatches(), m.TotalErrors(), m.TotalPanics(), m.AverageDuration())
	for _, c := range m.TopCommands(5) {
		fmt.Fprintf(out, "  %-16s %d (errors %d, no-op %d)\n", c.Name, c.DispatchCount, c.ErrorCount, c.NoOpCount)
	}
}

func (a *Application) printHelp(out io.Writer) {
	fmt.Fprint(out, `commands:
  set <key> <value>     set a key; value is YAML (undoable)
  del <key>             delete a key (undoable)
  set-in <path> <value> set a nested value, e.g. user.name (undoable)
  del-in <path>         delete a nested value (undoable)
  undo [n]              undo n steps
  redo [n]              redo n steps
  purge-redos           drop redo history
  clear-history         drop all history
  max-undos <n>         bound the undo history
  get <query> [args]    evaluate a query once
  sub <query> [args]    print a query's value whenever it changes
  unsub <query> [args]  stop a subscription
  eval <expr>           evaluate an expression against the db
  show                  print the db as YAML
  history               print undo/redo state
  stats                 print dispatch statistics
  quit                  exit
`)
	fmt.Fprintf(out, "registered commands: %s\n", strings.Join(a.dispatcher.Registry().List(), ", "))
	fmt.Fprintf(out, "queries: %s\n", strings.Join(a.queries.Names(), ", "))
}

// parseArgs splits on whitespace and decodes each field as a YAML scalar.
func parseArgs(s string) []any {
	fields := strings.Fields(s)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = parseArg(f)
	}
	return args
}

// parseArg decodes s as YAML, falling back to the raw string.
func parseArg(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
