package script

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/dshills/reframe/internal/dispatcher/handler"
)

const todoScript = `
function add_todo(db, text)
  db.todos = db.todos or {}
  table.insert(db.todos, text)
  return db
end

function noop(db)
  return nil
end

function fail(db)
  error("boom")
end

function count(db)
  if db.todos == nil then return 0 end
  return #db.todos
end
`

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	t.Cleanup(e.Close)
	if err := e.LoadString(todoScript); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	return e
}

func TestHandlerTransformsDB(t *testing.T) {
	e := newEngine(t)
	fn := e.Handler("add_todo")

	db := map[string]any{"owner": "ann"}
	next, err := fn(db, handler.NewEvent("add-todo", "milk"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	want := map[string]any{"owner": "ann", "todos": []any{"milk"}}
	if !reflect.DeepEqual(next, want) {
		t.Errorf("next = %#v, want %#v", next, want)
	}
	if _, ok := db["todos"]; ok {
		t.Error("input db was mutated")
	}
}

func TestHandlerNilKeepsDB(t *testing.T) {
	e := newEngine(t)
	db := map[string]any{"a": 1}

	next, err := e.Handler("noop")(db, handler.NewEvent("noop"))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !reflect.DeepEqual(next, db) {
		t.Errorf("next = %v, want %v", next, db)
	}
}

func TestHandlerErrors(t *testing.T) {
	e := newEngine(t)

	_, err := e.Handler("fail")(map[string]any{}, handler.NewEvent("fail"))
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if se.Source != "fail" {
		t.Errorf("Source = %q, want fail", se.Source)
	}

	_, err = e.Handler("missing")(map[string]any{}, handler.NewEvent("missing"))
	if !errors.Is(err, ErrFunctionNotFound) {
		t.Errorf("err = %v, want ErrFunctionNotFound", err)
	}
}

func TestCallReturnsIntegers(t *testing.T) {
	e := newEngine(t)

	out, err := e.Call("count", map[string]any{"todos": []any{"a", "b"}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(out) != 1 || out[0] != 2 {
		t.Errorf("out = %#v, want [2]", out)
	}
}

func TestSandbox(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	tests := []string{
		`os.exit(1)`,
		`io.write("x")`,
		`dofile("x.lua")`,
		`require("os")`,
	}
	for _, code := range tests {
		if err := e.LoadString(code); err == nil {
			t.Errorf("LoadString(%q) succeeded, want error", code)
		}
	}
}

func TestTimeout(t *testing.T) {
	e := NewEngine(WithTimeout(50 * time.Millisecond))
	defer e.Close()

	if err := e.LoadString(`function spin() while true do end end`); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Call("spin"); err == nil {
		t.Error("expected timeout error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmds.lua")
	if err := os.WriteFile(path, []byte(todoScript), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine()
	defer e.Close()
	if err := e.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !e.HasFunction("add_todo") {
		t.Error("add_todo not defined")
	}
	if e.HasFunction("print_all") {
		t.Error("print_all should not be defined")
	}
}

func TestClosedEngine(t *testing.T) {
	e := NewEngine()
	e.Close()
	e.Close()

	if err := e.LoadString("x = 1"); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("LoadString err = %v, want ErrEngineClosed", err)
	}
	if _, err := e.Call("x"); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Call err = %v, want ErrEngineClosed", err)
	}
}

func TestConversionRoundTrip(t *testing.T) {
	e := NewEngine()
	defer e.Close()
	if err := e.LoadString(`function id(v) return v end`); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 7, 7},
		{"float", 1.5, 1.5},
		{"string", "s", "s"},
		{"list", []any{1, "two"}, []any{1, "two"}},
		{"map", map[string]any{"k": []any{true}}, map[string]any{"k": []any{true}}},
		{"empty map", map[string]any{}, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Call("id", tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(out[0], tt.want) {
				t.Errorf("id(%#v) = %#v, want %#v", tt.in, out[0], tt.want)
			}
		})
	}
}
