// Package controlvalue models step control values as a closed set of kinds and
// provides the path, flatten and merge helpers the validation pipeline relies on.
package controlvalue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dario.cat/mergo"
)

// Kind is the runtime discriminator of a control value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// KindOf classifies v. Values decoded from JSON always map to a known kind.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return KindNumber
	case bool:
		return KindBool
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindUnknown
	}
}

// Clone returns a deep copy of v. Only objects and arrays are copied, leaves are shared.
func Clone(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = Clone(item)
		}

		return out
	default:
		return v
	}
}

// CloneMap returns a deep copy of m. A nil map yields an empty map.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = Clone(value)
	}

	return out
}

// Merge deep-merges override into base and returns a new map; neither input is modified.
// Objects merge key by key, with override winning on every leaf; arrays and
// scalars from override replace the base value entirely.
func Merge(base, override map[string]any) (map[string]any, error) {
	merged := CloneMap(base)

	err := mergo.Merge(&merged, CloneMap(override), mergo.WithOverride)
	if err != nil {
		return nil, fmt.Errorf("failed to merge control values: %w", err)
	}

	return merged, nil
}

// SplitPath splits a dotted path into segments. Bracket indexes ("items[0]")
// become separate numeric segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}

	normalized := strings.NewReplacer("[", ".", "]", "").Replace(path)
	parts := strings.Split(normalized, ".")

	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, `"'`)
		if part != "" {
			segments = append(segments, part)
		}
	}

	return segments
}

func arrayIndex(segment string) (int, bool) {
	idx, err := strconv.Atoi(segment)
	if err != nil || idx < 0 {
		return 0, false
	}

	return idx, true
}

// SetPath sets value at path inside root, creating intermediate objects and arrays.
// Numeric segments address array items.
func SetPath(root map[string]any, path string, value any) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return
	}

	root[segments[0]] = setIn(root[segments[0]], segments[1:], value)
}

func setIn(container any, segments []string, value any) any {
	if len(segments) == 0 {
		return value
	}

	if idx, ok := arrayIndex(segments[0]); ok {
		arr, _ := container.([]any)
		for len(arr) <= idx {
			arr = append(arr, nil)
		}

		arr[idx] = setIn(arr[idx], segments[1:], value)

		return arr
	}

	obj, ok := container.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}

	obj[segments[0]] = setIn(obj[segments[0]], segments[1:], value)

	return obj
}

// GetPath returns the value at path and whether it exists.
func GetPath(root map[string]any, path string) (any, bool) {
	var current any = root

	for _, segment := range SplitPath(path) {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			idx, ok := arrayIndex(segment)
			if !ok || idx >= len(typed) {
				return nil, false
			}

			current = typed[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// Flatten turns nested control values into a map of dotted keys to leaf values.
// Array items are addressed with numeric segments ("actions.0.label").
// Empty objects and arrays produce no keys.
func Flatten(values map[string]any) map[string]any {
	flat := map[string]any{}
	flattenInto(flat, "", values)

	return flat
}

func flattenInto(flat map[string]any, prefix string, value any) {
	switch typed := value.(type) {
	case map[string]any:
		for key, item := range typed {
			flattenInto(flat, joinKey(prefix, key), item)
		}
	case []any:
		for i, item := range typed {
			flattenInto(flat, joinKey(prefix, strconv.Itoa(i)), item)
		}
	default:
		if prefix != "" {
			flat[prefix] = value
		}
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + "." + key
}

// Unflatten rebuilds nested values from dotted keys. Keys are applied in sorted
// order so the result does not depend on map iteration.
func Unflatten(flat map[string]any) map[string]any {
	nested := map[string]any{}

	for _, key := range SortedKeys(flat) {
		SetPath(nested, key, flat[key])
	}

	return nested
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
