package pagination

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPaginationParams(t *testing.T) {
	tests := []struct {
		name     string
		query    url.Values
		expected int
	}{
		{name: "absent", query: url.Values{}, expected: 0},
		{name: "valid", query: url.Values{"skip": {"5"}}, expected: 5},
		{name: "zero", query: url.Values{"skip": {"0"}}, expected: 0},
		{name: "negative", query: url.Values{"skip": {"-2"}}, expected: 0},
		{name: "not a number", query: url.Values{"skip": {"abc"}}, expected: 0},
		{name: "padded", query: url.Values{"skip": {" 2 "}}, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetPaginationParams(tt.query).Skip)
		})
	}
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c"}

	assert.Equal(t, items, Slice(items, 0))
	assert.Equal(t, []string{"b", "c"}, Slice(items, 1))
	assert.Equal(t, []string{}, Slice(items, 3))
	assert.Equal(t, []string{}, Slice(items, 1<<30))
	assert.Equal(t, items, Slice(items, -1))
	assert.Equal(t, []string{}, Slice[string](nil, 0))
}
