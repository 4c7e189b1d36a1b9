// Package filter selects email records by dot-path queries such as
// from.address=x@a.com. Records are generic JSON trees, so a path segment may
// land on an object, a sequence of objects or a scalar; each case is handled
// explicitly by resolve.
package filter

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Record is the generic JSON view of a single email.
type Record = map[string]any

// Query maps dot paths to the value expected at that path.
type Query map[string]string

// FromValues builds a Query from URL parameters, dropping reserved keys.
// When a parameter repeats, the last occurrence wins.
func FromValues(values url.Values, reserved ...string) Query {
	q := Query{}
	for key, vals := range values {
		if len(vals) == 0 || isReserved(key, reserved) {
			continue
		}
		q[key] = vals[len(vals)-1]
	}
	return q
}

func isReserved(key string, reserved []string) bool {
	for _, r := range reserved {
		if key == r {
			return true
		}
	}
	return false
}

// Filter returns the records for which every pair in q matches. An empty
// query returns records unchanged; a query that matches nothing returns an
// empty, non-nil slice.
func Filter(records []Record, q Query) []Record {
	if len(q) == 0 {
		return records
	}
	paths := splitPaths(q)
	out := make([]Record, 0, len(records))
	for _, record := range records {
		if matchAll(record, q, paths) {
			out = append(out, record)
		}
	}
	return out
}

// Match reports whether a single record satisfies q.
func Match(record Record, q Query) bool {
	return matchAll(record, q, splitPaths(q))
}

func splitPaths(q Query) map[string][]string {
	paths := make(map[string][]string, len(q))
	for key := range q {
		paths[key] = strings.Split(key, ".")
	}
	return paths
}

func matchAll(record Record, q Query, paths map[string][]string) bool {
	for key, expected := range q {
		if !matchAny(resolve(record, paths[key]), expected) {
			return false
		}
	}
	return true
}

// resolve walks segments through value and returns every value found at the
// end of the path. A sequence is either indexed, when the segment is a
// non-negative integer within range, or fanned out so that each element is
// resolved against the same remaining segments. Missing keys and scalars with
// segments left yield nothing.
func resolve(value any, segments []string) []any {
	if len(segments) == 0 {
		if seq, ok := value.([]any); ok {
			return flatten(seq)
		}
		return []any{value}
	}

	switch v := value.(type) {
	case map[string]any:
		next, ok := v[segments[0]]
		if !ok {
			return nil
		}
		return resolve(next, segments[1:])
	case []any:
		if idx, err := strconv.Atoi(segments[0]); err == nil && idx >= 0 {
			if idx >= len(v) {
				return nil
			}
			return resolve(v[idx], segments[1:])
		}
		var found []any
		for _, elem := range v {
			found = append(found, resolve(elem, segments)...)
		}
		return found
	default:
		return nil
	}
}

func flatten(seq []any) []any {
	out := make([]any, 0, len(seq))
	for _, elem := range seq {
		if inner, ok := elem.([]any); ok {
			out = append(out, flatten(inner)...)
			continue
		}
		out = append(out, elem)
	}
	return out
}

func matchAny(values []any, expected string) bool {
	for _, v := range values {
		if matchValue(v, expected) {
			return true
		}
	}
	return false
}

// matchValue compares one resolved value. Strings match by case-sensitive
// containment, other scalars by their literal text. An object matches when
// any value nested inside it does.
func matchValue(value any, expected string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, expected)
	case bool:
		return strconv.FormatBool(v) == expected
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64) == expected
	case json.Number:
		return v.String() == expected
	case int:
		return strconv.Itoa(v) == expected
	case int64:
		return strconv.FormatInt(v, 10) == expected
	case map[string]any:
		for _, nested := range v {
			if matchAny(resolve(nested, nil), expected) {
				return true
			}
		}
		return false
	case []any:
		return matchAny(flatten(v), expected)
	default:
		return false
	}
}
