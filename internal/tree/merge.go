package tree

import (
	"fmt"
	"maps"
)

// MergeSections applies overrides onto dst one top-level section at a time
// and returns the result. dst and overrides are not mutated.
//
//   - table sections update key-by-key: an override key replaces the whole
//     value under that key, nested tables included
//   - list sections concatenate, dst entries first
//   - anything else is replaced by the override
//
// Sections that exist only in overrides are added as-is, so a misspelt
// section name silently becomes a new key in the output.
func MergeSections(dst, overrides Tree) (Tree, error) {
	out := Clone(dst)
	if out == nil {
		out = Tree{}
	}
	for _, section := range Keys(overrides) {
		override := CloneValue(overrides[section])
		base, exists := out[section]
		if !exists || base == nil {
			out[section] = override
			continue
		}

		merged, err := mergeSection(base, override)
		if err != nil {
			return nil, fmt.Errorf("merge section %q: %w", section, err)
		}
		out[section] = merged
	}
	return out, nil
}

func mergeSection(base, override any) (any, error) {
	if baseMap, ok := asMap(base); ok {
		overrideMap, ok := asMap(override)
		if !ok {
			return override, nil
		}
		merged := Clone(baseMap)
		maps.Copy(merged, overrideMap)
		return merged, nil
	}

	if baseList, ok := asList(base); ok {
		overrideList, ok := asList(override)
		if !ok {
			return override, nil
		}
		merged := make([]any, 0, len(baseList)+len(overrideList))
		merged = append(merged, baseList...)
		merged = append(merged, overrideList...)
		return merged, nil
	}

	return override, nil
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}
