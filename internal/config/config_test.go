package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/reframe/internal/config/loader"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.History.MaxUndos != 50 {
		t.Errorf("MaxUndos = %d, want 50", cfg.History.MaxUndos)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Dispatch.Async || !cfg.Dispatch.RecoverFromPanic {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.MaxUndos != 50 {
		t.Errorf("MaxUndos = %d, want 50", cfg.History.MaxUndos)
	}

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "reframe.toml", `
[history]
maxUndos = 5

[logging]
format = "json"

[scripts]
files = ["todos.lua", "/abs/other.lua"]
undoable = ["add-todo"]

[scripts.commands]
add-todo = "add_todo"

[queries]
"count?" = "len(todos ?? [])"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.History.MaxUndos != 5 {
		t.Errorf("MaxUndos = %d, want 5", cfg.History.MaxUndos)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	wantFile := filepath.Join(filepath.Dir(path), "todos.lua")
	if len(cfg.Scripts.Files) != 2 || cfg.Scripts.Files[0] != wantFile || cfg.Scripts.Files[1] != "/abs/other.lua" {
		t.Errorf("Files = %v", cfg.Scripts.Files)
	}
	if cfg.Scripts.Commands["add-todo"] != "add_todo" {
		t.Errorf("Commands = %v", cfg.Scripts.Commands)
	}
	if cfg.Queries["count?"] != "len(todos ?? [])" {
		t.Errorf("Queries = %v", cfg.Queries)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "reframe.yaml", "history:\n  maxUndos: 3\ndispatch:\n  async: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.MaxUndos != 3 {
		t.Errorf("MaxUndos = %d, want 3", cfg.History.MaxUndos)
	}
	if !cfg.Dispatch.Async || cfg.Dispatch.QueueSize != 1000 {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "reframe.toml", "[history]\nmaxUndos = 5\n")
	t.Setenv("REFRAME_MAX_UNDOS", "9")
	t.Setenv("REFRAME_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.History.MaxUndos != 9 {
		t.Errorf("MaxUndos = %d, want 9", cfg.History.MaxUndos)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		_, err := Load(writeFile(t, "reframe.json", "{}"))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("err = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("parse", func(t *testing.T) {
		_, err := Load(writeFile(t, "reframe.toml", "[history\n"))
		var pe *loader.ParseError
		if !errors.As(err, &pe) {
			t.Errorf("err = %v, want *loader.ParseError", err)
		}
	})

	t.Run("validation", func(t *testing.T) {
		_, err := Load(writeFile(t, "reframe.toml", "[logging]\nlevel = \"loud\"\n"))
		if !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("err = %v, want ErrValidationFailed", err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Path != "logging.level" {
			t.Errorf("first validation error = %v", ve)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero undos", func(c *Config) { c.History.MaxUndos = 0 }, true},
		{"negative undos", func(c *Config) { c.History.MaxUndos = -3 }, true},
		{"warning level", func(c *Config) { c.Logging.Level = "WARNING" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"async without queue", func(c *Config) { c.Dispatch.Async = true; c.Dispatch.QueueSize = 0 }, false},
		{"empty function", func(c *Config) { c.Scripts.Commands["x"] = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
