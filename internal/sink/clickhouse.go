package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/database"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// ClickHouseSink mirrors published mart tables into ClickHouse for
// analytical queries. Postgres stays authoritative; the mirror is rebuilt
// wholesale after every successful publish, with transient insert
// failures retried before the run is failed.
type ClickHouseSink struct {
	conn   database.ClickHouseNativeConn
	logger logging.Logger
	retry  retrypolicy.RetryPolicy[any]
}

func NewClickHouseSink(conn database.ClickHouseNativeConn, logger logging.Logger) *ClickHouseSink {
	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(200*time.Millisecond, 5*time.Second).
		WithMaxRetries(3).
		Build()
	return &ClickHouseSink{conn: conn, logger: logger, retry: retry}
}

var mirrorDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_channels (
		channel_key FixedString(32),
		channel_name String,
		channel_display_name String,
		channel_type LowCardinality(String),
		total_posts UInt32,
		first_post_date DateTime,
		last_post_date DateTime,
		avg_views Float64,
		avg_forwards Float64,
		media_posts UInt32,
		avg_message_length Float64,
		media_percentage Float64,
		engagement_rate Float64,
		mirrored_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(mirrored_at)
	ORDER BY channel_key`,

	`CREATE TABLE IF NOT EXISTS fct_messages (
		message_key FixedString(32),
		message_id Int64,
		channel_key FixedString(32),
		date_key Nullable(Int32),
		message_date DateTime,
		message_length UInt32,
		hour_of_day UInt8,
		has_media Bool,
		views Int32,
		forwards Int32,
		total_engagement Int32,
		forward_rate Float64,
		has_medical_keywords Bool,
		detected_product LowCardinality(Nullable(String)),
		mentions_price Bool,
		mentions_availability Bool,
		extracted_price_amount Nullable(Float64),
		mirrored_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(mirrored_at)
	ORDER BY message_key`,

	`CREATE TABLE IF NOT EXISTS fct_image_detections (
		detection_key FixedString(32),
		message_id Int64,
		channel_name String,
		image_path String,
		object_count UInt32,
		avg_confidence Float64,
		detected_classes String,
		has_person Bool,
		has_container Bool,
		has_medical_tool Bool,
		image_classification LowCardinality(String),
		message_key Nullable(FixedString(32)),
		channel_key Nullable(FixedString(32)),
		date_key Nullable(Int32),
		views Nullable(Int32),
		forwards Nullable(Int32),
		forward_rate Nullable(Float64),
		mirrored_at DateTime DEFAULT now()
	) ENGINE = ReplacingMergeTree(mirrored_at)
	ORDER BY detection_key`,
}

// EnsureTables creates the mirror tables when missing.
func (s *ClickHouseSink) EnsureTables(ctx context.Context) error {
	for _, ddl := range mirrorDDL {
		if err := s.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure mirror table: %w", err)
		}
	}
	return nil
}

// MirrorMarts batch-inserts the run's mart rows. ReplacingMergeTree
// collapses rows with unchanged keys, so repeated mirrors of identical
// runs converge to one row per key.
func (s *ClickHouseSink) MirrorMarts(ctx context.Context, channels []models.ChannelDimension, messages []models.MessageFact, detections []models.DetectionFact) error {
	err := failsafe.With(s.retry).Run(func() error {
		if err := s.mirrorChannels(ctx, channels); err != nil {
			return err
		}
		if err := s.mirrorMessages(ctx, messages); err != nil {
			return err
		}
		return s.mirrorDetections(ctx, detections)
	})
	if err != nil {
		return fmt.Errorf("mirror marts to clickhouse: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"channels":   len(channels),
		"messages":   len(messages),
		"detections": len(detections),
	}).Info("Mirrored marts to ClickHouse")
	return nil
}

func (s *ClickHouseSink) mirrorChannels(ctx context.Context, channels []models.ChannelDimension) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO dim_channels (
			channel_key, channel_name, channel_display_name, channel_type,
			total_posts, first_post_date, last_post_date, avg_views, avg_forwards,
			media_posts, avg_message_length, media_percentage, engagement_rate
		)`)
	if err != nil {
		return fmt.Errorf("prepare dim_channels batch: %w", err)
	}

	for _, c := range channels {
		if err := batch.Append(
			c.ChannelKey, c.ChannelName, c.ChannelDisplayName, c.ChannelType,
			uint32(c.TotalPosts), c.FirstPostDate, c.LastPostDate, c.AvgViews, c.AvgForwards,
			uint32(c.MediaPosts), c.AvgMessageLength, c.MediaPercentage, c.EngagementRate,
		); err != nil {
			return fmt.Errorf("append dim_channels row: %w", err)
		}
	}
	return batch.Send()
}

func (s *ClickHouseSink) mirrorMessages(ctx context.Context, messages []models.MessageFact) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fct_messages (
			message_key, message_id, channel_key, date_key, message_date,
			message_length, hour_of_day, has_media, views, forwards,
			total_engagement, forward_rate, has_medical_keywords, detected_product,
			mentions_price, mentions_availability, extracted_price_amount
		)`)
	if err != nil {
		return fmt.Errorf("prepare fct_messages batch: %w", err)
	}

	for _, f := range messages {
		var dateKey *int32
		if f.DateKey != nil {
			k := int32(*f.DateKey)
			dateKey = &k
		}
		var price *float64
		if f.ExtractedPriceAmount != nil {
			v, _ := f.ExtractedPriceAmount.Float64()
			price = &v
		}
		if err := batch.Append(
			f.MessageKey, f.MessageID, f.ChannelKey, dateKey, f.MessageDate,
			uint32(f.MessageLength), uint8(f.HourOfDay), f.HasMedia, int32(f.Views), int32(f.Forwards),
			int32(f.TotalEngagement), f.ForwardRate, f.HasMedicalKeywords, f.DetectedProduct,
			f.MentionsPrice, f.MentionsAvailability, price,
		); err != nil {
			return fmt.Errorf("append fct_messages row: %w", err)
		}
	}
	return batch.Send()
}

func (s *ClickHouseSink) mirrorDetections(ctx context.Context, detections []models.DetectionFact) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fct_image_detections (
			detection_key, message_id, channel_name, image_path, object_count,
			avg_confidence, detected_classes, has_person, has_container,
			has_medical_tool, image_classification, message_key, channel_key,
			date_key, views, forwards, forward_rate
		)`)
	if err != nil {
		return fmt.Errorf("prepare fct_image_detections batch: %w", err)
	}

	for _, f := range detections {
		var dateKey *int32
		if f.DateKey != nil {
			k := int32(*f.DateKey)
			dateKey = &k
		}
		var views, forwards *int32
		if f.Views != nil {
			v := int32(*f.Views)
			views = &v
		}
		if f.Forwards != nil {
			v := int32(*f.Forwards)
			forwards = &v
		}
		if err := batch.Append(
			f.DetectionKey, f.MessageID, f.ChannelName, f.ImagePath, uint32(f.ObjectCount),
			f.AvgConfidence, f.DetectedClasses, f.HasPerson, f.HasContainer,
			f.HasMedicalTool, f.ImageClassification, f.MessageKey, f.ChannelKey,
			dateKey, views, forwards, f.ForwardRate,
		); err != nil {
			return fmt.Errorf("append fct_image_detections row: %w", err)
		}
	}
	return batch.Send()
}
