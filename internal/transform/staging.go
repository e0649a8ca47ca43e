package transform

import (
	"strings"
	"unicode/utf8"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// NormalizeMessages turns raw scraped messages into staging rows. Rows
// with a null timestamp or null channel name are dropped; everything else
// gets defaults applied. Duplicate (message_id, channel_name) pairs keep
// their first occurrence; duplicate content under distinct keys is kept.
func NormalizeMessages(raw []models.RawMessage) []models.StagingMessage {
	staging := make([]models.StagingMessage, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for _, msg := range raw {
		if msg.MessageDate == nil || msg.ChannelName == nil {
			continue
		}

		channel := NormalizeChannelName(*msg.ChannelName)
		if channel == "" {
			continue
		}

		key := MessageKey(msg.MessageID, channel)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		text := ""
		if msg.MessageText != nil {
			text = CleanText(*msg.MessageText)
		}
		if text == "" {
			text = models.NoTextSentinel
		}

		row := models.StagingMessage{
			MessageKey:         key,
			MessageID:          msg.MessageID,
			ChannelName:        channel,
			MessageDate:        *msg.MessageDate,
			MessageText:        text,
			MessageLength:      utf8.RuneCountInString(text),
			HourOfDay:          msg.MessageDate.Hour(),
			ImagePath:          msg.ImagePath,
			ScrapedAt:          msg.ScrapedAt,
			HasMedicalKeywords: hasMedicalKeywords(text),
			DetectedProduct:    detectProduct(text),
		}
		if msg.HasMedia != nil {
			row.HasMedia = *msg.HasMedia
		}
		if msg.Views != nil {
			row.Views = *msg.Views
		}
		if msg.Forwards != nil {
			row.Forwards = *msg.Forwards
		}

		staging = append(staging, row)
	}

	return staging
}

// hasMedicalKeywords reports whether the text contains any entry of the
// medical keyword set. The test is a case-insensitive substring union.
func hasMedicalKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range medicalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// detectProduct returns the first product alternative (in list order, not
// text order) that occurs anywhere in the text, or nil when none match.
func detectProduct(text string) *string {
	lower := strings.ToLower(text)
	for _, product := range productAlternatives {
		if strings.Contains(lower, product) {
			p := product
			return &p
		}
	}
	return nil
}
