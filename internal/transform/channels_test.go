package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

func stagingMessage(id int64, channel string, date time.Time) models.StagingMessage {
	return models.StagingMessage{
		MessageKey:  MessageKey(id, channel),
		MessageID:   id,
		ChannelName: channel,
		MessageDate: date,
		MessageText: "text",
	}
}

func TestAggregateChannelsOneRowPerChannel(t *testing.T) {
	date := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	staging := []models.StagingMessage{
		stagingMessage(1, "chemed", date),
		stagingMessage(2, "chemed", date.Add(24*time.Hour)),
		stagingMessage(3, "tikvahpharma", date),
	}

	channels := AggregateChannels(staging)
	require.Len(t, channels, 2)

	// Sorted by channel name for deterministic output.
	assert.Equal(t, "chemed", channels[0].ChannelName)
	assert.Equal(t, "tikvahpharma", channels[1].ChannelName)
	assert.Equal(t, 2, channels[0].TotalPosts)
	assert.Equal(t, ChannelKey("chemed"), channels[0].ChannelKey)
}

func TestAggregateChannelsMetrics(t *testing.T) {
	date := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	a := stagingMessage(1, "chemed", date)
	a.Views, a.Forwards, a.MessageLength, a.HasMedia = 100, 10, 50, true
	b := stagingMessage(2, "chemed", date.Add(48*time.Hour))
	b.Views, b.Forwards, b.MessageLength = 201, 5, 31

	channels := AggregateChannels([]models.StagingMessage{a, b})
	require.Len(t, channels, 1)
	c := channels[0]

	assert.Equal(t, 150.5, c.AvgViews)
	assert.Equal(t, 7.5, c.AvgForwards)
	assert.Equal(t, 40.5, c.AvgMessageLength)
	assert.Equal(t, 1, c.MediaPosts)
	assert.Equal(t, 50.0, c.MediaPercentage)
	assert.Equal(t, date, c.FirstPostDate)
	assert.Equal(t, date.Add(48*time.Hour), c.LastPostDate)
	// (150.5 + 7.5) / 2 * 100
	assert.Equal(t, 7900.0, c.EngagementRate)
	assert.GreaterOrEqual(t, c.EngagementRate, 0.0)
	assert.GreaterOrEqual(t, c.MediaPercentage, 0.0)
	assert.LessOrEqual(t, c.MediaPercentage, 100.0)

	assert.Equal(t, 3, c.DaysActive())
	assert.Equal(t, "Low", c.ActivityLevel())
}

func TestChannelTypeRules(t *testing.T) {
	tests := []struct {
		channel  string
		expected string
	}{
		{"addis_pharm_store", "Pharmaceutical"},
		{"tikvahpharma", "Pharmaceutical"},
		{"lobelia4cosmetics", "Cosmetics"},
		{"ethiomedical", "Medical"},
		{"random_channel", "Other"},
		// "pharm" outranks "med" for names carrying both.
		{"pharmed", "Pharmaceutical"},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			assert.Equal(t, tt.expected, channelType(tt.channel))
		})
	}
}

func TestDisplayNameRules(t *testing.T) {
	assert.Equal(t, "Tikvah Pharma", displayName("tikvahpharma"))
	assert.Equal(t, "Lobelia Cosmetics", displayName("lobelia4cosmetics"))
	assert.Equal(t, "someshop", displayName("someshop"))
}

func TestHighVolumePharmaceuticalChannel(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	staging := make([]models.StagingMessage, 0, 1200)
	for i := 0; i < 1200; i++ {
		staging = append(staging, stagingMessage(int64(i), "addis_pharm_store", date.Add(time.Duration(i)*time.Hour)))
	}

	channels := AggregateChannels(staging)
	require.Len(t, channels, 1)
	assert.Equal(t, 1200, channels[0].TotalPosts)
	assert.Equal(t, "Pharmaceutical", channels[0].ChannelType)
	assert.Equal(t, "Very High", channels[0].ActivityLevel())
}
