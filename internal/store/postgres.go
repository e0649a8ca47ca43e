package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// Store is the Postgres persistence layer for all four warehouse layers.
// Reads take a snapshot of the raw tables; publishes replace the derived
// tables wholesale inside a single transaction, so readers only ever see
// either the previous complete output or the new one.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the warehouse schemas and the raw and calendar
// tables when missing. Derived tables are not created here, the publish
// path owns them.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := make([]string, 0, len(schemaDDL)+3)
	stmts = append(stmts, schemaDDL...)
	stmts = append(stmts, rawMessagesDDL, rawDetectionsDDL, dimDatesDDL)

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PopulateDateDimension fills utils.dim_dates for every day of the given
// inclusive range. Existing rows are left untouched, so the calendar can
// be extended without rewriting it.
func (s *Store) PopulateDateDimension(ctx context.Context, start, end time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin date dimension tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO utils.dim_dates (
			date_key, full_date, day_of_week, day_name, day_of_month,
			day_of_year, week_of_year, month, month_name, quarter, year, is_weekend
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (date_key) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare date dimension insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		row := dimDateFor(d)
		res, err := stmt.ExecContext(ctx,
			row.DateKey, row.FullDate, row.DayOfWeek, row.DayName, row.DayOfMonth,
			row.DayOfYear, row.WeekOfYear, row.Month, row.MonthName, row.Quarter,
			row.Year, row.IsWeekend)
		if err != nil {
			return 0, fmt.Errorf("insert dim_dates row %d: %w", row.DateKey, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit date dimension tx: %w", err)
	}
	return inserted, nil
}

// dimDateFor derives the calendar attributes of a single day.
func dimDateFor(d time.Time) models.DimDate {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	_, week := day.ISOWeek()
	dow := int(day.Weekday())
	return models.DimDate{
		DateKey:    day.Year()*10000 + int(day.Month())*100 + day.Day(),
		FullDate:   day,
		DayOfWeek:  dow,
		DayName:    day.Weekday().String(),
		DayOfMonth: day.Day(),
		DayOfYear:  day.YearDay(),
		WeekOfYear: week,
		Month:      int(day.Month()),
		MonthName:  day.Month().String(),
		Quarter:    (int(day.Month())-1)/3 + 1,
		Year:       day.Year(),
		IsWeekend:  dow == 0 || dow == 6,
	}
}

// RawMessages reads the full raw message snapshot, ordered for
// deterministic downstream dedup.
func (s *Store) RawMessages(ctx context.Context) ([]models.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, channel_name, message_date, message_text,
		       has_media, image_path, views, forwards, scraped_at, raw_data
		FROM raw.telegram_messages
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query raw messages: %w", err)
	}
	defer rows.Close()

	var messages []models.RawMessage
	for rows.Next() {
		var m models.RawMessage
		var scrapedAt sql.NullTime
		if err := rows.Scan(&m.MessageID, &m.ChannelName, &m.MessageDate, &m.MessageText,
			&m.HasMedia, &m.ImagePath, &m.Views, &m.Forwards, &scrapedAt, &m.RawData); err != nil {
			return nil, fmt.Errorf("scan raw message: %w", err)
		}
		if scrapedAt.Valid {
			m.ScrapedAt = scrapedAt.Time
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// RawDetections reads the full raw detection snapshot.
func (s *Store) RawDetections(ctx context.Context) ([]models.RawDetection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, channel_name, image_path, detected_objects,
		       detection_count, image_category, processing_date
		FROM raw.image_detections
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query raw detections: %w", err)
	}
	defer rows.Close()

	var detections []models.RawDetection
	for rows.Next() {
		var d models.RawDetection
		var category sql.NullString
		var processed sql.NullTime
		if err := rows.Scan(&d.MessageID, &d.ChannelName, &d.ImagePath, &d.DetectedObjects,
			&d.DetectionCount, &category, &processed); err != nil {
			return nil, fmt.Errorf("scan raw detection: %w", err)
		}
		d.ImageCategory = category.String
		if processed.Valid {
			d.ProcessingDate = processed.Time
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}

// DateKeys returns every date_key present in the calendar dimension.
func (s *Store) DateKeys(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date_key FROM utils.dim_dates ORDER BY date_key`)
	if err != nil {
		return nil, fmt.Errorf("query date keys: %w", err)
	}
	defer rows.Close()

	var keys []int
	for rows.Next() {
		var k int
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan date key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpsertRawMessages writes scraped messages into the raw layer, replacing
// prior rows with the same (message_id, channel_name).
func (s *Store) UpsertRawMessages(ctx context.Context, messages []models.RawMessage) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin raw message tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw.telegram_messages (
			message_id, channel_name, message_date, message_text,
			has_media, image_path, views, forwards, scraped_at, raw_data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (message_id, channel_name) DO UPDATE SET
			message_date = EXCLUDED.message_date,
			message_text = EXCLUDED.message_text,
			has_media = EXCLUDED.has_media,
			image_path = EXCLUDED.image_path,
			views = EXCLUDED.views,
			forwards = EXCLUDED.forwards,
			scraped_at = EXCLUDED.scraped_at,
			raw_data = EXCLUDED.raw_data`)
	if err != nil {
		return fmt.Errorf("prepare raw message upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		var rawData interface{}
		if len(m.RawData) > 0 {
			rawData = []byte(m.RawData)
		}
		if _, err := stmt.ExecContext(ctx,
			m.MessageID, m.ChannelName, m.MessageDate, m.MessageText,
			m.HasMedia, m.ImagePath, m.Views, m.Forwards, m.ScrapedAt, rawData); err != nil {
			return fmt.Errorf("upsert raw message %d: %w", m.MessageID, err)
		}
	}

	return tx.Commit()
}

// UpsertRawDetections writes detection results into the raw layer,
// replacing prior rows with the same (message_id, channel_name, image_path).
func (s *Store) UpsertRawDetections(ctx context.Context, detections []models.RawDetection) error {
	if len(detections) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin raw detection tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw.image_detections (
			message_id, channel_name, image_path, detected_objects,
			detection_count, image_category, processing_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id, channel_name, image_path) DO UPDATE SET
			detected_objects = EXCLUDED.detected_objects,
			detection_count = EXCLUDED.detection_count,
			image_category = EXCLUDED.image_category,
			processing_date = EXCLUDED.processing_date`)
	if err != nil {
		return fmt.Errorf("prepare raw detection upsert: %w", err)
	}
	defer stmt.Close()

	for _, d := range detections {
		var objects interface{}
		if len(d.DetectedObjects) > 0 {
			objects = []byte(d.DetectedObjects)
		}
		if _, err := stmt.ExecContext(ctx,
			d.MessageID, d.ChannelName, d.ImagePath, objects,
			d.DetectionCount, d.ImageCategory, d.ProcessingDate); err != nil {
			return fmt.Errorf("upsert raw detection %s: %w", d.ImagePath, err)
		}
	}

	return tx.Commit()
}

// PublishStaging replaces staging.telegram_messages with the given rows.
func (s *Store) PublishStaging(ctx context.Context, staging []models.StagingMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin staging publish tx: %w", err)
	}
	defer tx.Rollback()

	if err := buildTable(ctx, tx, "staging", "telegram_messages", stagingMessagesDDL); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO staging.telegram_messages_next (
			message_key, message_id, channel_name, message_date, message_text,
			message_length, hour_of_day, has_media, image_path, views, forwards,
			has_medical_keywords, detected_product, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`)
	if err != nil {
		return fmt.Errorf("prepare staging insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range staging {
		if _, err := stmt.ExecContext(ctx,
			m.MessageKey, m.MessageID, m.ChannelName, m.MessageDate, m.MessageText,
			m.MessageLength, m.HourOfDay, m.HasMedia, m.ImagePath, m.Views, m.Forwards,
			m.HasMedicalKeywords, m.DetectedProduct, nullableTime(m.ScrapedAt)); err != nil {
			return fmt.Errorf("insert staging row %s: %w", m.MessageKey, err)
		}
	}

	if err := swapTable(ctx, tx, "staging", "telegram_messages"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit staging publish: %w", err)
	}
	s.logger.WithFields(logging.Fields{"rows": len(staging)}).Info("Published staging.telegram_messages")
	return nil
}

// PublishMarts replaces all three mart tables in one transaction. Either
// every table flips to the new run's output or none do.
func (s *Store) PublishMarts(ctx context.Context, channels []models.ChannelDimension, messages []models.MessageFact, detections []models.DetectionFact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin marts publish tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertChannels(ctx, tx, channels); err != nil {
		return err
	}
	if err := s.insertMessageFacts(ctx, tx, messages); err != nil {
		return err
	}
	if err := s.insertDetectionFacts(ctx, tx, detections); err != nil {
		return err
	}

	for _, table := range []string{"dim_channels", "fct_messages", "fct_image_detections"} {
		if err := swapTable(ctx, tx, "marts", table); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit marts publish: %w", err)
	}
	s.logger.WithFields(logging.Fields{
		"channels":   len(channels),
		"messages":   len(messages),
		"detections": len(detections),
	}).Info("Published marts tables")
	return nil
}

func (s *Store) insertChannels(ctx context.Context, tx *sql.Tx, channels []models.ChannelDimension) error {
	if err := buildTable(ctx, tx, "marts", "dim_channels", dimChannelsDDL); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marts.dim_channels_next (
			channel_key, channel_name, channel_display_name, channel_type,
			total_posts, first_post_date, last_post_date, avg_views, avg_forwards,
			media_posts, avg_message_length, media_percentage, engagement_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("prepare dim_channels insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range channels {
		if _, err := stmt.ExecContext(ctx,
			c.ChannelKey, c.ChannelName, c.ChannelDisplayName, c.ChannelType,
			c.TotalPosts, c.FirstPostDate, c.LastPostDate, c.AvgViews, c.AvgForwards,
			c.MediaPosts, c.AvgMessageLength, c.MediaPercentage, c.EngagementRate); err != nil {
			return fmt.Errorf("insert dim_channels row %s: %w", c.ChannelName, err)
		}
	}
	return nil
}

func (s *Store) insertMessageFacts(ctx context.Context, tx *sql.Tx, facts []models.MessageFact) error {
	if err := buildTable(ctx, tx, "marts", "fct_messages", fctMessagesDDL); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marts.fct_messages_next (
			message_key, message_id, channel_key, date_key, message_date,
			message_text, message_length, hour_of_day, has_media, views, forwards,
			total_engagement, forward_rate, has_medical_keywords, detected_product,
			mentions_price, mentions_availability, extracted_price_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`)
	if err != nil {
		return fmt.Errorf("prepare fct_messages insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx,
			f.MessageKey, f.MessageID, f.ChannelKey, f.DateKey, f.MessageDate,
			f.MessageText, f.MessageLength, f.HourOfDay, f.HasMedia, f.Views, f.Forwards,
			f.TotalEngagement, f.ForwardRate, f.HasMedicalKeywords, f.DetectedProduct,
			f.MentionsPrice, f.MentionsAvailability, f.ExtractedPriceAmount); err != nil {
			return fmt.Errorf("insert fct_messages row %s: %w", f.MessageKey, err)
		}
	}
	return nil
}

func (s *Store) insertDetectionFacts(ctx context.Context, tx *sql.Tx, facts []models.DetectionFact) error {
	if err := buildTable(ctx, tx, "marts", "fct_image_detections", fctImageDetectionsDDL); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO marts.fct_image_detections_next (
			detection_key, message_id, channel_name, image_path, object_count,
			avg_confidence, detected_classes, has_person, has_container,
			has_medical_tool, image_classification, image_category, processing_date,
			message_key, channel_key, date_key, views, forwards, forward_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`)
	if err != nil {
		return fmt.Errorf("prepare fct_image_detections insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		var category interface{}
		if f.ImageCategory != "" {
			category = f.ImageCategory
		}
		if _, err := stmt.ExecContext(ctx,
			f.DetectionKey, f.MessageID, f.ChannelName, f.ImagePath, f.ObjectCount,
			f.AvgConfidence, f.DetectedClasses, f.HasPerson, f.HasContainer,
			f.HasMedicalTool, f.ImageClassification, category, nullableTime(f.ProcessingDate),
			f.MessageKey, f.ChannelKey, f.DateKey, f.Views, f.Forwards, f.ForwardRate); err != nil {
			return fmt.Errorf("insert fct_image_detections row %s: %w", f.DetectionKey, err)
		}
	}
	return nil
}

// buildTable creates <schema>.<name>_next from the templated DDL,
// dropping any leftover from an aborted run first.
func buildTable(ctx context.Context, tx *sql.Tx, schema, name, ddl string) error {
	next := fmt.Sprintf("%s.%s_next", schema, name)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", next)); err != nil {
		return fmt.Errorf("drop stale %s: %w", next, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(ddl, next, name+"_next")); err != nil {
		return fmt.Errorf("create %s: %w", next, err)
	}
	return nil
}

// swapTable renames <name>_next into place. The previous table is dropped
// inside the same transaction, so readers outside it never observe a gap.
// Renaming a table does not rename its primary key index, so the swap
// renames that too. Dropping the old table frees the <name>_pk name and
// renaming the index frees <name>_next_pk for the next run's CREATE.
func swapTable(ctx context.Context, tx *sql.Tx, schema, name string) error {
	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", schema, name),
		fmt.Sprintf("ALTER TABLE %s.%s_next RENAME TO %s", schema, name, name),
		fmt.Sprintf("ALTER INDEX %s.%s_next_pk RENAME TO %s_pk", schema, name, name),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("swap %s.%s: %w", schema, name, err)
		}
	}
	return nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
