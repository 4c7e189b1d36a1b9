// Package pagination provides the offset-based pagination used by the email
// listing. Clients page through results with a single skip parameter; the
// package extracts it from URL query strings and applies it to an already
// filtered result. Invalid input never produces an error, it degrades to the
// first page.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// SkipParam is the query parameter holding the number of entries to drop
	SkipParam = "skip"
	// DefaultSkip is used when the parameter is absent or invalid
	DefaultSkip = 0
)

// Params represents pagination parameters extracted from a request.
type Params struct {
	Skip int // Number of leading entries to drop
}

// GetPaginationParams extracts pagination parameters from URL query values.
// A skip that is not a non-negative integer falls back to the default.
func GetPaginationParams(q url.Values) *Params {
	params := &Params{Skip: DefaultSkip}

	if skipStr := strings.TrimSpace(q.Get(SkipParam)); skipStr != "" {
		if val, err := strconv.Atoi(skipStr); err == nil && val >= 0 {
			params.Skip = val
		}
	}

	return params
}

// Slice drops the first skip items. A skip at or beyond the end yields an
// empty, non-nil slice.
func Slice[T any](items []T, skip int) []T {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(items) {
		return []T{}
	}
	return items[skip:]
}
