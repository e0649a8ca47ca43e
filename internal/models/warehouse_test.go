package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLevelBuckets(t *testing.T) {
	tests := []struct {
		posts    int
		expected string
	}{
		{1500, "Very High"},
		{1000, "Very High"},
		{999, "High"},
		{500, "High"},
		{499, "Medium"},
		{100, "Medium"},
		{99, "Low"},
		{0, "Low"},
	}
	for _, tt := range tests {
		c := ChannelDimension{TotalPosts: tt.posts}
		assert.Equal(t, tt.expected, c.ActivityLevel(), "posts=%d", tt.posts)
	}
}

func TestDaysActiveInclusive(t *testing.T) {
	first := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	sameDay := ChannelDimension{FirstPostDate: first, LastPostDate: first.Add(5 * time.Hour)}
	assert.Equal(t, 1, sameDay.DaysActive())

	span := ChannelDimension{FirstPostDate: first, LastPostDate: first.AddDate(0, 0, 6)}
	assert.Equal(t, 7, span.DaysActive())
}

func TestPostsPerDayZeroGuard(t *testing.T) {
	var empty ChannelDimension
	assert.Equal(t, 0.0, empty.PostsPerDay())

	c := ChannelDimension{
		TotalPosts:    10,
		FirstPostDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		LastPostDate:  time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 2.0, c.PostsPerDay())
}

func TestDetectedObjectUnmarshal(t *testing.T) {
	var obj DetectedObject
	require.NoError(t, json.Unmarshal([]byte(`{"object":"bottle","confidence":0.9}`), &obj))
	assert.Equal(t, "bottle", obj.ClassName)
	assert.Equal(t, 0.9, obj.Confidence)

	require.NoError(t, json.Unmarshal([]byte(`{"class_name":"person","confidence":0.5}`), &obj))
	assert.Equal(t, "person", obj.ClassName)

	// "object" wins when both keys are present.
	require.NoError(t, json.Unmarshal([]byte(`{"object":"cup","class_name":"bowl","confidence":0.4}`), &obj))
	assert.Equal(t, "cup", obj.ClassName)
}
