package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newWatcher(t *testing.T, opts ...Option) *Watcher {
	t.Helper()
	w, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpWrite, "write"},
		{OpCreate, "create"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestWatcher_WatchUnwatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.toml")
	b := filepath.Join(dir, "b.toml")

	w := newWatcher(t)
	if err := w.Watch(a); err != nil {
		t.Fatalf("Watch(a): %v", err)
	}
	if err := w.Watch(b); err != nil {
		t.Fatalf("Watch(b): %v", err)
	}
	if err := w.Watch(a); err != nil {
		t.Fatalf("Watch(a) again: %v", err)
	}

	files := w.WatchedFiles()
	if len(files) != 2 || files[0] != a || files[1] != b {
		t.Errorf("WatchedFiles() = %v, want [%s %s]", files, a, b)
	}

	if err := w.Unwatch(a); err != nil {
		t.Fatalf("Unwatch: %v", err)
	}
	if got := w.WatchedFiles(); len(got) != 1 {
		t.Errorf("WatchedFiles() after Unwatch = %v", got)
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := newWatcher(t)
	if err := w.Watch(filepath.Join(t.TempDir(), "missing", "c.toml")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatcher_DebouncedChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reframe.toml")
	other := filepath.Join(dir, "other.toml")
	if err := os.WriteFile(path, []byte("a = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(t, WithDebounce(50*time.Millisecond))
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var events []Event
	fired := make(chan struct{}, 10)
	w.OnChange(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		fired <- struct{}{}
	})
	w.Start()
	if !w.IsRunning() {
		t.Fatal("watcher not running after Start")
	}

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("a = 2\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(other, []byte("b = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("no change event")
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %v", len(events), events)
	}
	if events[0].Path != path {
		t.Errorf("Path = %q, want %q", events[0].Path, path)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatal(err)
	}
	w.Start()
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if w.IsRunning() {
		t.Error("watcher running after Stop")
	}
	if err := w.Watch(filepath.Join(t.TempDir(), "x.toml")); err != ErrWatcherClosed {
		t.Errorf("Watch after Stop = %v, want ErrWatcherClosed", err)
	}
}
