// Package undo binds a history.Manager to the command dispatcher and the
// subscription registry.
//
// Register installs the commands
//
//	undo [n]        restore up to n earlier states (default 1)
//	redo [n]        re-apply up to n undone states (default 1)
//	purge-redos     drop pending redos
//	clear-history   drop all history
//	set-max-undos n change the history bound
//
// and the queries undos?, redos?, undo-count and redo-count, which
// recompute whenever the history changes. undo and redo are impure: they act
// on the manager and the store directly rather than returning a new db.
package undo

import (
	"fmt"

	"github.com/dshills/reframe/internal/dispatcher/handler"
	"github.com/dshills/reframe/internal/event/topic"
	"github.com/dshills/reframe/internal/history"
	"github.com/dshills/reframe/internal/subs"
)

// Command and query names.
const (
	CmdUndo         = "undo"
	CmdRedo         = "redo"
	CmdPurgeRedos   = "purge-redos"
	CmdClearHistory = "clear-history"
	CmdSetMaxUndos  = "set-max-undos"

	QueryUndos     = "undos?"
	QueryRedos     = "redos?"
	QueryUndoCount = "undo-count"
	QueryRedoCount = "redo-count"
)

// CommandRegistrar accepts impure command handlers.
type CommandRegistrar interface {
	RegisterHandlerFunc(name string, fn func(handler.Event, *handler.Context) handler.Result)
}

// QueryRegistrar accepts reactive queries.
type QueryRegistrar interface {
	Register(name string, fn subs.QueryFunc, topics ...topic.Topic) error
}

// Register installs the undo commands on commands and the history queries on
// queries, all bound to m.
func Register(commands CommandRegistrar, queries QueryRegistrar, m *history.Manager) error {
	commands.RegisterHandlerFunc(CmdUndo, undoHandler(m))
	commands.RegisterHandlerFunc(CmdRedo, redoHandler(m))
	commands.RegisterHandlerFunc(CmdPurgeRedos, func(handler.Event, *handler.Context) handler.Result {
		if !m.CanRedo() {
			return handler.NoOp()
		}
		m.PurgeRedos()
		return handler.Success()
	})
	commands.RegisterHandlerFunc(CmdClearHistory, func(handler.Event, *handler.Context) handler.Result {
		m.ClearHistory()
		return handler.Success()
	})
	commands.RegisterHandlerFunc(CmdSetMaxUndos, func(ev handler.Event, _ *handler.Context) handler.Result {
		if ev.Arg(0) == nil {
			return handler.Errorf("%s: missing bound", ev.Name)
		}
		n, err := ev.IntArg(0, history.DefaultMaxUndos)
		if err != nil {
			return handler.Error(err)
		}
		m.SetMaxUndos(n)
		return handler.SuccessWithData("max", n)
	})

	bind := []struct {
		name string
		fn   subs.QueryFunc
	}{
		{QueryUndos, func(any, []any) any { return m.CanUndo() }},
		{QueryRedos, func(any, []any) any { return m.CanRedo() }},
		{QueryUndoCount, func(any, []any) any { return m.UndoCount() }},
		{QueryRedoCount, func(any, []any) any { return m.RedoCount() }},
	}
	for _, q := range bind {
		if err := queries.Register(q.name, q.fn, topic.HistoryChanged); err != nil {
			return fmt.Errorf("register %s: %w", q.name, err)
		}
	}
	return nil
}

func stepCount(ev handler.Event) (int, error) {
	n, err := ev.IntArg(0, 1)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("%s: step count must be positive, got %d", ev.Name, n)
	}
	return n, nil
}

func undoHandler(m *history.Manager) func(handler.Event, *handler.Context) handler.Result {
	return func(ev handler.Event, _ *handler.Context) handler.Result {
		n, err := stepCount(ev)
		if err != nil {
			return handler.Error(err)
		}
		steps := m.UndoN(n)
		if steps == 0 {
			return handler.NoOpWithMessage("nothing to undo")
		}
		return handler.SuccessWithData("steps", steps)
	}
}

func redoHandler(m *history.Manager) func(handler.Event, *handler.Context) handler.Result {
	return func(ev handler.Event, _ *handler.Context) handler.Result {
		n, err := stepCount(ev)
		if err != nil {
			return handler.Error(err)
		}
		steps := m.RedoN(n)
		if steps == 0 {
			return handler.NoOpWithMessage("nothing to redo")
		}
		return handler.SuccessWithData("steps", steps)
	}
}
