// Package tree operates on the nested map/list/scalar documents produced by
// the TOML and YAML decoders.
package tree

import (
	"fmt"
	"math"
	"sort"

	"github.com/mohae/deepcopy"
)

// Tree is a decoded document table.
type Tree = map[string]any

// Lookup walks path through nested tables. It reports false when any segment
// is missing or an intermediate value is not a table.
func Lookup(t any, path ...string) (any, bool) {
	cur := t
	for _, key := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path or def when absent or not a string.
func String(t any, def string, path ...string) string {
	v, ok := Lookup(t, path...)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Bool returns the boolean at path or def when absent or not a boolean.
func Bool(t any, def bool, path ...string) bool {
	v, ok := Lookup(t, path...)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the integer at path or def. Decoders produce int, int64 or
// uint64 depending on the format; all are accepted.
func Int(t any, def int, path ...string) int {
	v, ok := Lookup(t, path...)
	if !ok {
		return def
	}
	n, ok := ToInt(v)
	if !ok {
		return def
	}
	return n
}

// ToInt converts a decoded numeric scalar to int.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// Strings returns the string list at path or def. Non-string elements make
// the whole value invalid.
func Strings(t any, def []string, path ...string) []string {
	v, ok := Lookup(t, path...)
	if !ok {
		return def
	}
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	default:
		return def
	}
}

// Map returns the table at path or nil.
func Map(t any, path ...string) Tree {
	v, ok := Lookup(t, path...)
	if !ok {
		return nil
	}
	m, _ := asMap(v)
	return m
}

// Keys returns the keys of m in sorted order.
func Keys(m Tree) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of t.
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	return deepcopy.Copy(t).(Tree)
}

// CloneValue returns a deep copy of an arbitrary decoded value.
func CloneValue(v any) any {
	return deepcopy.Copy(v)
}

func asMap(v any) (Tree, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(Tree, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
