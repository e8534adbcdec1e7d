package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrEmptyPath is returned for an empty path.
var ErrEmptyPath = errors.New("db: empty path")

// GetIn returns the value at path, or nil when nothing is there.
//
// Paths use gjson syntax: "user.name", "todos.0", "todos.#" (length).
// When the snapshot is a map and the path starts with a plain key, only
// that top-level entry is round-tripped through JSON; other paths treat
// the whole snapshot as one JSON document. The round-tripped part must be
// JSON-representable (maps with non-string keys, funcs and channels fail)
// and integral numbers in it come back as int.
func GetIn(s Snapshot, path string) (any, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	doc, _, err := subtree(s, path)
	if err != nil {
		return nil, err
	}
	r := gjson.GetBytes(doc, path)
	if !r.Exists() {
		return nil, nil
	}
	return normalize(r.Value()), nil
}

// SetIn returns a copy of s with value stored at path. Missing
// intermediate objects are created.
func SetIn(s Snapshot, path string, value any) (Snapshot, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if m, key, ok := topLevel(s, path); ok && key == path {
		next := copyMap(m)
		next[key] = value
		return next, nil
	}
	doc, merge, err := subtree(s, path)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetBytes(doc, path, value)
	if err != nil {
		return nil, fmt.Errorf("db: set %s: %w", path, err)
	}
	return merge(out)
}

// DeleteIn returns a copy of s without the value at path.
func DeleteIn(s Snapshot, path string) (Snapshot, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if m, key, ok := topLevel(s, path); ok {
		if _, exists := m[key]; !exists || key == path {
			next := copyMap(m)
			delete(next, key)
			return next, nil
		}
	}
	doc, merge, err := subtree(s, path)
	if err != nil {
		return nil, err
	}
	out, err := sjson.DeleteBytes(doc, path)
	if err != nil {
		return nil, fmt.Errorf("db: delete %s: %w", path, err)
	}
	return merge(out)
}

// subtree encodes the part of s that path can reach and returns a func
// that folds an edited document back into a copy of s.
func subtree(s Snapshot, path string) ([]byte, func([]byte) (Snapshot, error), error) {
	m, key, ok := topLevel(s, path)
	if !ok {
		data, err := encode(s)
		return data, decode, err
	}

	part := map[string]any{}
	if child, exists := m[key]; exists {
		part[key] = child
	}
	data, err := encode(part)
	if err != nil {
		return nil, nil, err
	}
	merge := func(out []byte) (Snapshot, error) {
		edited, err := decode(out)
		if err != nil {
			return nil, err
		}
		next := copyMap(m)
		em, _ := edited.(map[string]any)
		if v, exists := em[key]; exists {
			next[key] = v
		} else {
			delete(next, key)
		}
		return next, nil
	}
	return data, merge, nil
}

// topLevel reports the map and first path segment when the path begins
// with a plain key into a map snapshot. A nil snapshot counts as an
// empty map.
func topLevel(s Snapshot, path string) (map[string]any, string, bool) {
	var m map[string]any
	switch v := s.(type) {
	case nil:
		m = map[string]any{}
	case map[string]any:
		m = v
	default:
		return nil, "", false
	}

	key := path
	if i := strings.IndexByte(path, '.'); i >= 0 {
		key = path[:i]
	}
	if key == "" || strings.ContainsAny(key, "\\*?#|@!{}[]:") {
		return nil, "", false
	}
	return m, key, true
}

func copyMap(m map[string]any) map[string]any {
	next := make(map[string]any, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func encode(s Snapshot) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("db: snapshot is not a JSON document: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Snapshot, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("db: decoding snapshot: %w", err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int(val)
		}
		return val
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalize(val[k])
		}
		return val
	default:
		return v
	}
}
