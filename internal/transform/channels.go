package transform

import (
	"math"
	"sort"
	"strings"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// AggregateChannels rolls staging messages up into exactly one dimension
// row per distinct channel name. Output is sorted by channel name so that
// reruns over unchanged input produce byte-identical tables.
func AggregateChannels(staging []models.StagingMessage) []models.ChannelDimension {
	type acc struct {
		row         models.ChannelDimension
		sumViews    int
		sumForwards int
		sumLength   int
	}

	byChannel := make(map[string]*acc)
	for _, msg := range staging {
		a, ok := byChannel[msg.ChannelName]
		if !ok {
			a = &acc{row: models.ChannelDimension{
				ChannelKey:         ChannelKey(msg.ChannelName),
				ChannelName:        msg.ChannelName,
				ChannelDisplayName: displayName(msg.ChannelName),
				ChannelType:        channelType(msg.ChannelName),
				FirstPostDate:      msg.MessageDate,
				LastPostDate:       msg.MessageDate,
			}}
			byChannel[msg.ChannelName] = a
		}

		a.row.TotalPosts++
		a.sumViews += msg.Views
		a.sumForwards += msg.Forwards
		a.sumLength += msg.MessageLength
		if msg.HasMedia {
			a.row.MediaPosts++
		}
		if msg.MessageDate.Before(a.row.FirstPostDate) {
			a.row.FirstPostDate = msg.MessageDate
		}
		if msg.MessageDate.After(a.row.LastPostDate) {
			a.row.LastPostDate = msg.MessageDate
		}
	}

	channels := make([]models.ChannelDimension, 0, len(byChannel))
	for _, a := range byChannel {
		total := float64(a.row.TotalPosts)
		if total > 0 {
			a.row.AvgViews = round2(float64(a.sumViews) / total)
			a.row.AvgForwards = round2(float64(a.sumForwards) / total)
			a.row.AvgMessageLength = round2(float64(a.sumLength) / total)
			a.row.MediaPercentage = round2(float64(a.row.MediaPosts) / total * 100)
			a.row.EngagementRate = round2((a.row.AvgViews + a.row.AvgForwards) / total * 100)
		}
		channels = append(channels, a.row)
	}

	sort.Slice(channels, func(i, j int) bool {
		return channels[i].ChannelName < channels[j].ChannelName
	})
	return channels
}

// channelType assigns the channel classification from the ordered
// substring rules; the first matching rule wins.
func channelType(channelName string) string {
	lower := strings.ToLower(channelName)
	for _, rule := range channelTypeRules {
		if strings.Contains(lower, rule.Substring) {
			return rule.Type
		}
	}
	return defaultChannelType
}

// displayName resolves the human-readable channel name, checking brand
// aliases in order before falling back to the raw name.
func displayName(channelName string) string {
	lower := strings.ToLower(channelName)
	for _, rule := range displayNameRules {
		if strings.Contains(lower, rule.Substring) {
			return rule.Display
		}
	}
	return channelName
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
