package rules

import (
	"strconv"
	"strings"
)

// Lookup resolves a dotted path such as "client.name" against a payload.
// The boolean is false when any segment is missing, which callers treat as undefined.
// Numeric segments index into slices ("items.0.id").
func Lookup(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, false
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// LookupString resolves a path and returns it as a trimmed string id.
// Numbers are formatted without a fractional part when they are integral.
func LookupString(payload map[string]any, path string) (string, bool) {
	v, ok := Lookup(payload, path)
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(FormatScalar(v))
	return s, s != ""
}

// FormatScalar renders scalar values the way they appear in payloads
func FormatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}
