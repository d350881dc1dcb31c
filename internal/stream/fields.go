package stream

import (
	"sort"
	"strconv"
	"strings"
)

// fieldPath addresses a value inside a decoded payload. Numeric segments
// index into arrays.
type fieldPath []string

func path(segments ...string) fieldPath {
	return fieldPath(segments)
}

func (p fieldPath) String() string {
	return strings.Join(p, ".")
}

// under returns every path prefixed once by each container, after the bare
// paths themselves.
func under(paths []fieldPath, containers ...string) []fieldPath {
	out := make([]fieldPath, 0, len(paths)*(len(containers)+1))
	out = append(out, paths...)
	for _, c := range containers {
		for _, p := range paths {
			nested := make(fieldPath, 0, len(p)+1)
			nested = append(nested, c)
			nested = append(nested, p...)
			out = append(out, nested)
		}
	}
	return out
}

func lookup(v any, p fieldPath) (any, bool) {
	cur := v
	for _, seg := range p {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// firstString returns the first string found at paths that accept allows.
// A nil accept allows any string.
func firstString(v any, paths []fieldPath, accept func(string) bool) (string, bool) {
	for _, p := range paths {
		raw, ok := lookup(v, p)
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			continue
		}
		if accept == nil || accept(s) {
			return s, true
		}
	}
	return "", false
}

// firstValue returns the first non-null value found at paths.
func firstValue(v any, paths []fieldPath) (any, bool) {
	for _, p := range paths {
		if raw, ok := lookup(v, p); ok && raw != nil {
			return raw, true
		}
	}
	return nil, false
}

func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truthy follows the producer's loose notion of a set flag.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
