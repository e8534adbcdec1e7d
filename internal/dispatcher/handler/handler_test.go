package handler

import (
	"errors"
	"testing"
)

type memStore struct{ v any }

func (s *memStore) Get() any      { return s.v }
func (s *memStore) Replace(v any) { s.v = v }

func TestHandlerFunc(t *testing.T) {
	called := false
	h := NewHandlerFuncWithPriority(func(ev Event, ctx *Context) Result {
		called = true
		return Success()
	}, 5)

	if h.Priority() != 5 {
		t.Errorf("Priority() = %d, want 5", h.Priority())
	}
	if r := h.Handle(NewEvent("x"), nil); !r.IsOK() {
		t.Errorf("expected OK, got %v", r.Status)
	}
	if !called {
		t.Error("expected function to be called")
	}

	var nilFn HandlerFunc
	if r := nilFn.Handle(NewEvent("x"), nil); !r.IsError() {
		t.Error("nil function should produce an error result")
	}
}

func TestDBHandler(t *testing.T) {
	store := &memStore{v: 1}
	ctx := NewContext(store)

	inc := NewDBHandler(func(db any, ev Event) (any, error) {
		n, err := ev.IntArg(0, 1)
		if err != nil {
			return nil, err
		}
		return db.(int) + n, nil
	})

	if r := inc.Handle(NewEvent("inc", 2), ctx); !r.IsOK() {
		t.Fatalf("expected OK, got %v: %v", r.Status, r.Error)
	}
	if store.v != 3 {
		t.Errorf("store = %v, want 3", store.v)
	}

	r := inc.Handle(NewEvent("inc", "nope"), ctx)
	if !r.IsError() {
		t.Fatal("expected error for bad argument")
	}
	if store.v != 3 {
		t.Errorf("failed handler must not replace, store = %v", store.v)
	}

	if r := inc.Handle(NewEvent("inc"), nil); !r.IsError() {
		t.Error("missing context should be an error")
	}
}

func TestEventArgs(t *testing.T) {
	ev := NewEvent("undo", "3", 4, 2.0)

	if ev.ID == "" {
		t.Error("NewEvent should assign an ID")
	}
	tests := []struct {
		idx  int
		want int
	}{
		{0, 3}, {1, 4}, {2, 2}, {3, 9},
	}
	for _, tt := range tests {
		got, err := ev.IntArg(tt.idx, 9)
		if err != nil {
			t.Errorf("IntArg(%d): %v", tt.idx, err)
		}
		if got != tt.want {
			t.Errorf("IntArg(%d) = %d, want %d", tt.idx, got, tt.want)
		}
	}

	if _, err := NewEvent("x", true).IntArg(0, 1); err == nil {
		t.Error("expected error for bool argument")
	}
	if ev.Arg(-1) != nil || ev.Arg(10) != nil {
		t.Error("out of range Arg should be nil")
	}
	if got := NewEvent("redo").String(); got != "redo" {
		t.Errorf("String() = %q", got)
	}
}

func TestResultHelpers(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name   string
		result Result
		status ResultStatus
	}{
		{"success", Success(), StatusOK},
		{"noop", NoOpWithMessage("nothing to undo"), StatusNoOp},
		{"error", Error(boom), StatusError},
		{"errorf", Errorf("bad %d", 1), StatusError},
		{"cancelled", CancelledWithMessage("hook"), StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.result.Status != tt.status {
				t.Errorf("status = %v, want %v", tt.result.Status, tt.status)
			}
		})
	}

	r := SuccessWithData("steps", 2).WithMessage("done")
	if v, ok := r.GetData("steps"); !ok || v != 2 {
		t.Errorf("GetData(steps) = %v, %v", v, ok)
	}
	if r.Message != "done" {
		t.Errorf("Message = %q", r.Message)
	}
	if _, ok := Success().GetData("x"); ok {
		t.Error("empty result should have no data")
	}
	if StatusNoOp.String() != "no-op" || ResultStatus(99).String() != "unknown" {
		t.Error("unexpected status strings")
	}
}
