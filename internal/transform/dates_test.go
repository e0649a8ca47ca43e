package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	tests := []struct {
		date     time.Time
		expected int
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 20240101},
		{time.Date(2025, 7, 15, 23, 59, 59, 0, time.UTC), 20250715},
		{time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC), 20261231},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DateKey(tt.date))
	}
}

func TestDateIndexResolve(t *testing.T) {
	idx := NewDateIndex([]int{20240101, 20240102})

	key := idx.Resolve(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC))
	require.NotNil(t, key)
	assert.Equal(t, 20240102, *key)

	// Outside the calendar resolves to nil, not an error.
	assert.Nil(t, idx.Resolve(time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDateIndexEmpty(t *testing.T) {
	idx := NewDateIndex(nil)
	assert.Nil(t, idx.Resolve(time.Now()))
}
