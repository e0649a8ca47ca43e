package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// NoTextSentinel is stored in place of a missing or empty message text.
const NoTextSentinel = "No text content"

// RawMessage represents a row of raw.telegram_messages as scraped from a
// channel. Nullable columns are pointers; the loaders never fill them in
// with defaults, that is the normalizer's job.
type RawMessage struct {
	MessageID   int64           `json:"message_id"`
	ChannelName *string         `json:"channel_name"`
	MessageDate *time.Time      `json:"message_date"`
	MessageText *string         `json:"message_text"`
	HasMedia    *bool           `json:"has_media"`
	ImagePath   *string         `json:"image_path"`
	Views       *int            `json:"views"`
	Forwards    *int            `json:"forwards"`
	ScrapedAt   time.Time       `json:"scraped_at"`
	RawData     json.RawMessage `json:"raw_data,omitempty"`
}

// RawDetection represents a row of raw.image_detections produced by the
// object-detection collaborator. DetectedObjects carries the unparsed
// payload so that a malformed array only fails its own record.
type RawDetection struct {
	MessageID       *int64          `json:"message_id"`
	ChannelName     *string         `json:"channel_name"`
	ImagePath       string          `json:"image_path"`
	DetectedObjects json.RawMessage `json:"detected_objects"`
	DetectionCount  int             `json:"detection_count"`
	ImageCategory   string          `json:"image_category"`
	ProcessingDate  time.Time       `json:"processing_date"`
}

// DetectedObject is one entry of a detection array. The loader writes the
// label under "object"; the detector's own JSON uses "class_name". Both
// spellings are accepted.
type DetectedObject struct {
	ClassName  string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

// UnmarshalJSON accepts either "object" or "class_name" as the label key.
func (d *DetectedObject) UnmarshalJSON(data []byte) error {
	var aux struct {
		Object     string  `json:"object"`
		ClassName  string  `json:"class_name"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.ClassName = aux.Object
	if d.ClassName == "" {
		d.ClassName = aux.ClassName
	}
	d.Confidence = aux.Confidence
	return nil
}

// StagingMessage is a cleaned, per-message normalized record prior to
// dimensional modeling. One row per distinct (message_id, channel_name).
type StagingMessage struct {
	MessageKey         string     `json:"message_key"`
	MessageID          int64      `json:"message_id"`
	ChannelName        string     `json:"channel_name"`
	MessageDate        time.Time  `json:"message_date"`
	MessageText        string     `json:"message_text"`
	MessageLength      int        `json:"message_length"`
	HourOfDay          int        `json:"hour_of_day"`
	HasMedia           bool       `json:"has_media"`
	ImagePath          *string    `json:"image_path"`
	Views              int        `json:"views"`
	Forwards           int        `json:"forwards"`
	HasMedicalKeywords bool       `json:"has_medical_keywords"`
	DetectedProduct    *string    `json:"detected_product"`
	ScrapedAt          time.Time  `json:"scraped_at"`
}

// ChannelDimension is one row per distinct normalized channel name.
type ChannelDimension struct {
	ChannelKey         string    `json:"channel_key"`
	ChannelName        string    `json:"channel_name"`
	ChannelDisplayName string    `json:"channel_display_name"`
	ChannelType        string    `json:"channel_type"`
	TotalPosts         int       `json:"total_posts"`
	FirstPostDate      time.Time `json:"first_post_date"`
	LastPostDate       time.Time `json:"last_post_date"`
	AvgViews           float64   `json:"avg_views"`
	AvgForwards        float64   `json:"avg_forwards"`
	MediaPosts         int       `json:"media_posts"`
	AvgMessageLength   float64   `json:"avg_message_length"`
	MediaPercentage    float64   `json:"media_percentage"`
	EngagementRate     float64   `json:"engagement_rate"`
}

// DaysActive returns the inclusive day span between first and last post.
func (c ChannelDimension) DaysActive() int {
	first := c.FirstPostDate.Truncate(24 * time.Hour)
	last := c.LastPostDate.Truncate(24 * time.Hour)
	if last.Before(first) {
		return 0
	}
	return int(last.Sub(first).Hours()/24) + 1
}

// PostsPerDay returns average posts per active day, zero-guarded.
func (c ChannelDimension) PostsPerDay() float64 {
	days := c.DaysActive()
	if days == 0 {
		return 0
	}
	return float64(c.TotalPosts) / float64(days)
}

// ActivityLevel buckets the channel by total post volume.
func (c ChannelDimension) ActivityLevel() string {
	switch {
	case c.TotalPosts >= 1000:
		return "Very High"
	case c.TotalPosts >= 500:
		return "High"
	case c.TotalPosts >= 100:
		return "Medium"
	default:
		return "Low"
	}
}

// DimDate is one row of the shared calendar dimension (utils.dim_dates).
type DimDate struct {
	DateKey    int       `json:"date_key"`
	FullDate   time.Time `json:"full_date"`
	DayOfWeek  int       `json:"day_of_week"`
	DayName    string    `json:"day_name"`
	DayOfMonth int       `json:"day_of_month"`
	DayOfYear  int       `json:"day_of_year"`
	WeekOfYear int       `json:"week_of_year"`
	Month      int       `json:"month"`
	MonthName  string    `json:"month_name"`
	Quarter    int       `json:"quarter"`
	Year       int       `json:"year"`
	IsWeekend  bool      `json:"is_weekend"`
}

// MessageFact is one row per staging message, referencing dimensions by
// surrogate key only.
type MessageFact struct {
	MessageKey           string           `json:"message_key"`
	MessageID            int64            `json:"message_id"`
	ChannelKey           string           `json:"channel_key"`
	DateKey              *int             `json:"date_key"`
	MessageDate          time.Time        `json:"message_date"`
	MessageText          string           `json:"message_text"`
	MessageLength        int              `json:"message_length"`
	HourOfDay            int              `json:"hour_of_day"`
	HasMedia             bool             `json:"has_media"`
	Views                int              `json:"views"`
	Forwards             int              `json:"forwards"`
	TotalEngagement      int              `json:"total_engagement"`
	ForwardRate          float64          `json:"forward_rate"`
	HasMedicalKeywords   bool             `json:"has_medical_keywords"`
	DetectedProduct      *string          `json:"detected_product"`
	MentionsPrice        bool             `json:"mentions_price"`
	MentionsAvailability bool             `json:"mentions_availability"`
	ExtractedPriceAmount *decimal.Decimal `json:"extracted_price_amount"`
}

// DetectionFact is one row per qualifying raw detection, left-joined to
// the matching message fact. Fact-linkage fields are nil when no matching
// message exists.
type DetectionFact struct {
	DetectionKey        string    `json:"detection_key"`
	MessageID           int64     `json:"message_id"`
	ChannelName         string    `json:"channel_name"`
	ImagePath           string    `json:"image_path"`
	ObjectCount         int       `json:"object_count"`
	AvgConfidence       float64   `json:"avg_confidence"`
	DetectedClasses     string    `json:"detected_classes"`
	HasPerson           bool      `json:"has_person"`
	HasContainer        bool      `json:"has_container"`
	HasMedicalTool      bool      `json:"has_medical_tool"`
	ImageClassification string    `json:"image_classification"`
	ImageCategory       string    `json:"image_category"`
	ProcessingDate      time.Time `json:"processing_date"`

	// Populated from the joined message fact.
	MessageKey  *string  `json:"message_key"`
	ChannelKey  *string  `json:"channel_key"`
	DateKey     *int     `json:"date_key"`
	Views       *int     `json:"views"`
	Forwards    *int     `json:"forwards"`
	ForwardRate *float64 `json:"forward_rate"`
}
