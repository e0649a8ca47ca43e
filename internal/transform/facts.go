package transform

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// BuildMessageFacts joins staging messages to the channel dimension and
// the calendar, producing one fact row per staging row with derived
// engagement metrics and content-signal flags. A staging row whose
// channel does not resolve to a dimension row is a data-quality fault:
// the dimension is built from the same staging snapshot, so within one
// run every channel must resolve.
func BuildMessageFacts(staging []models.StagingMessage, channels []models.ChannelDimension, dates DateIndex) ([]models.MessageFact, error) {
	channelKeys := make(map[string]string, len(channels))
	for _, c := range channels {
		channelKeys[c.ChannelName] = c.ChannelKey
	}

	facts := make([]models.MessageFact, 0, len(staging))
	for _, msg := range staging {
		channelKey, ok := channelKeys[msg.ChannelName]
		if !ok {
			return nil, fmt.Errorf("channel %q has no dimension row", msg.ChannelName)
		}

		fact := models.MessageFact{
			MessageKey:           msg.MessageKey,
			MessageID:            msg.MessageID,
			ChannelKey:           channelKey,
			DateKey:              dates.Resolve(msg.MessageDate),
			MessageDate:          msg.MessageDate,
			MessageText:          msg.MessageText,
			MessageLength:        msg.MessageLength,
			HourOfDay:            msg.HourOfDay,
			HasMedia:             msg.HasMedia,
			Views:                msg.Views,
			Forwards:             msg.Forwards,
			TotalEngagement:      msg.Views + msg.Forwards,
			HasMedicalKeywords:   msg.HasMedicalKeywords,
			DetectedProduct:      msg.DetectedProduct,
			MentionsPrice:        containsAny(msg.MessageText, priceKeywords),
			MentionsAvailability: containsAny(msg.MessageText, availabilityKeywords),
			ExtractedPriceAmount: extractPrice(msg.MessageText),
		}
		if msg.Views > 0 {
			fact.ForwardRate = round2(float64(msg.Forwards) / float64(msg.Views) * 100)
		}

		facts = append(facts, fact)
	}

	return facts, nil
}

// containsAny is a case-insensitive substring union over the keyword set.
func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractPrice parses the first price-like substring (a number followed
// by a currency token) into a two-decimal amount, or nil when the text
// carries none.
func extractPrice(text string) *decimal.Decimal {
	match := priceAmountPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	amount, err := decimal.NewFromString(match[1])
	if err != nil {
		return nil
	}
	amount = amount.Round(2)
	return &amount
}
