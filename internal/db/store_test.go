package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/reframe/internal/db"
	"github.com/dshills/reframe/internal/event"
	"github.com/dshills/reframe/internal/event/topic"
)

func TestGetReplace(t *testing.T) {
	s := db.New("a")

	if s.Get() != "a" {
		t.Fatalf("Get() = %v, want a", s.Get())
	}

	s.Replace("b")
	if s.Get() != "b" {
		t.Errorf("Get() = %v, want b", s.Get())
	}
}

func TestReplacePublishes(t *testing.T) {
	bus := event.NewBus()
	s := db.New(0, db.WithPublisher(bus))

	var got []any
	_, err := bus.Subscribe(topic.DBReplaced, func(_ context.Context, n event.Notification) error {
		got = append(got, n.Payload)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Replace(1)
	s.Replace(2)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("notifications = %v, want [1 2]", got)
	}
}

func TestUpdate(t *testing.T) {
	s := db.New(1)

	err := s.Update(func(v db.Snapshot) (db.Snapshot, error) {
		return v.(int) + 1, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.Get() != 2 {
		t.Errorf("Get() = %v, want 2", s.Get())
	}

	boom := errors.New("boom")
	err = s.Update(func(db.Snapshot) (db.Snapshot, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if s.Get() != 2 {
		t.Errorf("failed update must not replace, got %v", s.Get())
	}

	if err := s.Update(nil); !errors.Is(err, db.ErrNilUpdate) {
		t.Errorf("expected ErrNilUpdate, got %v", err)
	}
}
