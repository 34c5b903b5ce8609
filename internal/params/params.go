// Package params normalizes loosely typed inbound values before they reach the core.
package params

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StringList turns a list-ish value into an ordered list of distinct, non-empty strings.
//
// Accepted shapes: nil, []string, []any, a JSON array encoded as a string, a
// comma-separated string, or any other scalar (wrapped as a single item).
func StringList(v any) []string {
	var raw []string
	switch x := v.(type) {
	case nil:
		return nil
	case []string:
		raw = x
	case []any:
		for _, item := range x {
			if item == nil {
				continue
			}
			raw = append(raw, stringify(item))
		}
	case string:
		raw = fromString(x)
	case json.RawMessage:
		return StringList(string(x))
	default:
		raw = []string{stringify(x)}
	}
	return dedupe(raw)
}

// SplitCSV splits a comma-separated flag value.
func SplitCSV(s string) []string {
	return dedupe(strings.Split(s, ","))
}

func fromString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var items []any
		if err := json.Unmarshal([]byte(s), &items); err == nil {
			out := make([]string, 0, len(items))
			for _, item := range items {
				if item != nil {
					out = append(out, stringify(item))
				}
			}
			return out
		}
	}
	return strings.Split(s, ",")
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// JSON numbers decode as float64; print integers without a fraction.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
