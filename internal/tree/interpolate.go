package tree

import "strings"

// Interpolate returns a structurally identical copy of v in which every
// occurrence of token in map keys and string scalars is replaced by value.
// Non-string scalars pass through unchanged and v is never mutated.
func Interpolate(v any, token, value string) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[strings.ReplaceAll(k, token, value)] = Interpolate(val, token, value)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(node))
		for i, item := range node {
			out[i] = Interpolate(item, token, value).(map[string]any)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Interpolate(item, token, value)
		}
		return out
	case []string:
		out := make([]string, len(node))
		for i, item := range node {
			out[i] = strings.ReplaceAll(item, token, value)
		}
		return out
	case string:
		return strings.ReplaceAll(node, token, value)
	default:
		return node
	}
}

// InterpolateTree is Interpolate specialised to tables.
func InterpolateTree(t Tree, token, value string) Tree {
	if t == nil {
		return nil
	}
	return Interpolate(t, token, value).(Tree)
}

// Count returns the number of occurrences of s in map keys and string
// scalars of v.
func Count(v any, s string) int {
	if s == "" {
		return 0
	}
	switch node := v.(type) {
	case map[string]any:
		n := 0
		for k, val := range node {
			n += strings.Count(k, s) + Count(val, s)
		}
		return n
	case []map[string]any:
		n := 0
		for _, item := range node {
			n += Count(item, s)
		}
		return n
	case []any:
		n := 0
		for _, item := range node {
			n += Count(item, s)
		}
		return n
	case []string:
		n := 0
		for _, item := range node {
			n += strings.Count(item, s)
		}
		return n
	case string:
		return strings.Count(node, s)
	default:
		return 0
	}
}
