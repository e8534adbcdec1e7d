package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/reframe/internal/config/loader"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "REFRAME_"

// Config is the complete reframe configuration.
type Config struct {
	History  HistoryConfig     `yaml:"history"`
	Logging  LoggingConfig     `yaml:"logging"`
	Dispatch DispatchConfig    `yaml:"dispatch"`
	Scripts  ScriptsConfig     `yaml:"scripts"`
	Queries  map[string]string `yaml:"queries"`

	// Path is the file the configuration was loaded from, if any.
	Path string `yaml:"-"`
}

// HistoryConfig configures undo history.
type HistoryConfig struct {
	// MaxUndos bounds the number of undo steps kept.
	MaxUndos int `yaml:"maxUndos"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// DispatchConfig configures the command dispatcher.
type DispatchConfig struct {
	Async            bool `yaml:"async"`
	QueueSize        int  `yaml:"queueSize"`
	RecoverFromPanic bool `yaml:"recoverFromPanic"`
	Metrics          bool `yaml:"metrics"`
}

// ScriptsConfig configures Lua command handlers.
type ScriptsConfig struct {
	// Files are Lua sources loaded at startup.
	Files []string `yaml:"files"`
	// Commands maps command names to Lua function names.
	Commands map[string]string `yaml:"commands"`
	// Undoable lists commands that record history before running.
	Undoable []string `yaml:"undoable"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		History: HistoryConfig{MaxUndos: 50},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Dispatch: DispatchConfig{
			QueueSize:        1000,
			RecoverFromPanic: true,
		},
		Scripts: ScriptsConfig{Commands: map[string]string{}},
		Queries: map[string]string{},
	}
}

// Load builds a configuration from defaults, the file at path and the
// environment. An empty path or a missing file yields defaults plus
// environment.
func Load(path string) (*Config, error) {
	layers := []map[string]any{defaultsMap()}

	if path != "" {
		l, err := loader.ForPath(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
		file, err := l.Load()
		if err != nil {
			return nil, err
		}
		layers = append(layers, file)
	}

	env, err := loader.NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	layers = append(layers, env)

	merged := make(map[string]any)
	for _, layer := range layers {
		merged = loader.DeepMerge(merged, layer)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultsMap() map[string]any {
	m, err := toMap(Default())
	if err != nil {
		panic(fmt.Sprintf("config: encoding defaults: %v", err))
	}
	return m
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromMap decodes a merged settings map through YAML so file and
// environment values share one set of field tags.
func fromMap(m map[string]any) (*Config, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Queries == nil {
		cfg.Queries = map[string]string{}
	}
	if cfg.Scripts.Commands == nil {
		cfg.Scripts.Commands = map[string]string{}
	}
	return cfg, nil
}

func (c *Config) resolvePaths() {
	if c.Path == "" {
		return
	}
	dir := filepath.Dir(c.Path)
	for i, f := range c.Scripts.Files {
		if !filepath.IsAbs(f) {
			c.Scripts.Files[i] = filepath.Join(dir, f)
		}
	}
}

// Validate checks value ranges. history.maxUndos is not checked: any
// value at or below zero disables retention.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, &ValidationError{Path: "logging.level", Message: "unknown level", Value: c.Logging.Level})
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, &ValidationError{Path: "logging.format", Message: "must be text or json", Value: c.Logging.Format})
	}

	if c.Dispatch.Async && c.Dispatch.QueueSize <= 0 {
		errs = append(errs, &ValidationError{Path: "dispatch.queueSize", Message: "must be positive when async", Value: c.Dispatch.QueueSize})
	}

	for name, fn := range c.Scripts.Commands {
		if name == "" || fn == "" {
			errs = append(errs, &ValidationError{Path: "scripts.commands", Message: "empty command or function name", Value: name})
		}
	}

	return errors.Join(errs...)
}
