package subs_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/reframe/internal/db"
	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/subs"
)

func setup(initial any) (*db.Store, *subs.Registry, event.Bus) {
	bus := event.NewBus()
	store := db.New(initial, db.WithPublisher(bus))
	return store, subs.NewRegistry(store, bus), bus
}

func TestRegisterValidation(t *testing.T) {
	_, reg, _ := setup(nil)

	if err := reg.Register("x", nil); !errors.Is(err, subs.ErrNilQuery) {
		t.Errorf("expected ErrNilQuery, got %v", err)
	}
	if _, err := reg.Subscribe("missing"); !errors.Is(err, subs.ErrUnknownQuery) {
		t.Errorf("expected ErrUnknownQuery, got %v", err)
	}
	if _, err := reg.Query("missing"); !errors.Is(err, subs.ErrUnknownQuery) {
		t.Errorf("expected ErrUnknownQuery, got %v", err)
	}
}

func TestReactionRecomputesOnReplace(t *testing.T) {
	store, reg, _ := setup(map[string]any{"count": 1})

	_ = reg.Register("count", func(v any, args []any) any {
		return v.(map[string]any)["count"]
	})

	rx, err := reg.Subscribe("count")
	if err != nil {
		t.Fatal(err)
	}
	if rx.Value() != 1 {
		t.Fatalf("Value() = %v, want 1", rx.Value())
	}

	store.Replace(map[string]any{"count": 2})
	if rx.Value() != 2 {
		t.Errorf("Value() = %v, want 2", rx.Value())
	}
}

func TestWatchFiresOnlyOnChange(t *testing.T) {
	store, reg, _ := setup(map[string]any{"count": 1, "other": "a"})
	_ = reg.Register("count", func(v any, args []any) any {
		return v.(map[string]any)["count"]
	})

	rx, _ := reg.Subscribe("count")

	type change struct{ old, new any }
	var changes []change
	if err := rx.Watch(func(old, new any) { changes = append(changes, change{old, new}) }); err != nil {
		t.Fatal(err)
	}

	store.Replace(map[string]any{"count": 1, "other": "b"})
	store.Replace(map[string]any{"count": 5, "other": "b"})

	if len(changes) != 1 {
		t.Fatalf("changes = %v, want exactly one", changes)
	}
	if changes[0].old != 1 || changes[0].new != 5 {
		t.Errorf("change = %+v, want 1 -> 5", changes[0])
	}
}

func TestQueryArgs(t *testing.T) {
	_, reg, _ := setup(map[string]any{"a": 1, "b": 2})
	_ = reg.Register("get", func(v any, args []any) any {
		return v.(map[string]any)[args[0].(string)]
	})

	got, err := reg.Query("get", "b")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("Query(get, b) = %v, want 2", got)
	}

	rx, _ := reg.Subscribe("get", "a")
	if rx.Value() != 1 {
		t.Errorf("Value() = %v, want 1", rx.Value())
	}
}

func TestDispose(t *testing.T) {
	store, reg, bus := setup(0)
	_ = reg.Register("v", func(v any, args []any) any { return v })

	rx, _ := reg.Subscribe("v")
	before := bus.Stats().ActiveSubscribers

	rx.Dispose()
	rx.Dispose()

	if bus.Stats().ActiveSubscribers != before-1 {
		t.Errorf("dispose should unsubscribe from the bus")
	}

	store.Replace(9)
	if rx.Value() != 0 {
		t.Errorf("disposed reaction should be frozen, got %v", rx.Value())
	}
	if err := rx.Watch(func(any, any) {}); !errors.Is(err, subs.ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
}

func TestNamesAndHas(t *testing.T) {
	_, reg, _ := setup(nil)
	_ = reg.Register("redos?", func(any, []any) any { return false })
	_ = reg.Register("undos?", func(any, []any) any { return false })

	names := reg.Names()
	if len(names) != 2 || names[0] != "redos?" || names[1] != "undos?" {
		t.Errorf("Names() = %v", names)
	}
	if !reg.Has("undos?") || reg.Has("nope") {
		t.Error("Has() mismatch")
	}
}

func TestReactionWithoutBus(t *testing.T) {
	store := db.New(1)
	reg := subs.NewRegistry(store, nil)
	_ = reg.Register("v", func(v any, args []any) any { return v })

	rx, err := reg.Subscribe("v")
	if err != nil {
		t.Fatal(err)
	}
	store.Replace(2)
	if rx.Value() != 1 {
		t.Errorf("without a bus the reaction only updates on Refresh")
	}
	rx.Refresh()
	if rx.Value() != 2 {
		t.Errorf("Value() = %v after Refresh, want 2", rx.Value())
	}
	rx.Dispose()
}

func TestConcurrentRefreshKeepsNewestValue(t *testing.T) {
	store := db.New(map[string]any{"flag": true})
	reg := subs.NewRegistry(store, nil)

	var gated atomic.Bool
	entered := make(chan struct{})
	release := make(chan struct{})
	_ = reg.Register("flag", func(v any, args []any) any {
		flag := v.(map[string]any)["flag"]
		if gated.CompareAndSwap(true, false) {
			close(entered)
			<-release
		}
		return flag
	})

	rx, err := reg.Subscribe("flag")
	if err != nil {
		t.Fatal(err)
	}
	store.Replace(map[string]any{"flag": 1})

	var wg sync.WaitGroup
	gated.Store(true)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rx.Refresh()
	}()
	<-entered

	store.Replace(map[string]any{"flag": false})
	wg.Add(1)
	go func() {
		defer wg.Done()
		rx.Refresh()
	}()

	close(release)
	wg.Wait()

	if got := rx.Value(); got != false {
		t.Errorf("Value() = %v after both refreshes, want false", got)
	}
}
