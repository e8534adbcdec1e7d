// Package config loads reframe's configuration.
//
// Configuration is merged from three layers, higher overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← REFRAME_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← TOML or YAML, by extension
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │
//	└─────────────────────────────┘
//
// Command line flags are applied by the caller after Load.
//
// # Sub-packages
//
//   - loader: TOML, YAML and environment variable loading into maps
//   - watcher: fsnotify-based file watching for live reload
//
// # Configuration Files
//
//	# reframe.toml
//	[history]
//	maxUndos = 100
//
//	[logging]
//	level = "debug"
//	format = "json"
//
//	[scripts]
//	files = ["todos.lua"]
//	undoable = ["add-todo"]
//
//	[scripts.commands]
//	add-todo = "add_todo"
//
//	[queries]
//	"todo-count?" = "len(todos ?? [])"
//
// Relative script paths are resolved against the config file's directory.
package config
