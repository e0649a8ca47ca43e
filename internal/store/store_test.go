package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, logging.NewLogger()), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS raw").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS staging").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS marts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS utils").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS raw.telegram_messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS raw.image_detections").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS utils.dim_dates").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulateDateDimension(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO utils.dim_dates")
	// First day already present, second day inserted.
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	inserted, err := store.PopulateDateDimension(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDimDateFor(t *testing.T) {
	row := dimDateFor(time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC))

	assert.Equal(t, 20240615, row.DateKey)
	assert.Equal(t, "Saturday", row.DayName)
	assert.Equal(t, 6, row.DayOfWeek)
	assert.True(t, row.IsWeekend)
	assert.Equal(t, 2, row.Quarter)
	assert.Equal(t, "June", row.MonthName)
	assert.Equal(t, 167, row.DayOfYear)
}

func TestRawMessagesScansNullableColumns(t *testing.T) {
	store, mock := newMockStore(t)

	date := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"message_id", "channel_name", "message_date", "message_text",
		"has_media", "image_path", "views", "forwards", "scraped_at", "raw_data",
	}).
		AddRow(int64(1), "chemed", date, "hello", true, "img.jpg", 100, 5, date, []byte(`{"a":1}`)).
		AddRow(int64(2), nil, nil, nil, nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery("FROM raw.telegram_messages").WillReturnRows(rows)

	messages, err := store.RawMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 2)

	first := messages[0]
	require.NotNil(t, first.ChannelName)
	assert.Equal(t, "chemed", *first.ChannelName)
	require.NotNil(t, first.Views)
	assert.Equal(t, 100, *first.Views)

	second := messages[1]
	assert.Nil(t, second.ChannelName)
	assert.Nil(t, second.MessageDate)
	assert.Nil(t, second.HasMedia)
	assert.True(t, second.ScrapedAt.IsZero())
}

func TestDateKeys(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"date_key"}).AddRow(20240101).AddRow(20240102)
	mock.ExpectQuery("SELECT date_key FROM utils.dim_dates").WillReturnRows(rows)

	keys, err := store.DateKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{20240101, 20240102}, keys)
}

func TestPublishStagingSwapsInsideOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS staging.telegram_messages_next").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE staging.telegram_messages_next").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO staging.telegram_messages_next")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DROP TABLE IF EXISTS staging.telegram_messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER TABLE staging.telegram_messages_next RENAME TO telegram_messages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER INDEX staging.telegram_messages_next_pk RENAME TO telegram_messages_pk").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	staging := []models.StagingMessage{{
		MessageKey:  "abc",
		MessageID:   1,
		ChannelName: "chemed",
		MessageDate: time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
		MessageText: "hello",
	}}

	require.NoError(t, store.PublishStaging(context.Background(), staging))
	require.NoError(t, mock.ExpectationsWereMet())
}

// Renaming a table leaves its primary key index name behind, so without
// the index rename a second publish would try to create an index name the
// first run's table still holds. Two consecutive publishes must each
// create the same _next constraint name and rename it away on swap.
func TestPublishStagingRepeatedRunsReuseConstraintName(t *testing.T) {
	store, mock := newMockStore(t)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("DROP TABLE IF EXISTS staging.telegram_messages_next").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CREATE TABLE staging.telegram_messages_next [\s\S]*CONSTRAINT telegram_messages_next_pk PRIMARY KEY`).WillReturnResult(sqlmock.NewResult(0, 0))
		prep := mock.ExpectPrepare("INSERT INTO staging.telegram_messages_next")
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DROP TABLE IF EXISTS staging.telegram_messages").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ALTER TABLE staging.telegram_messages_next RENAME TO telegram_messages").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("ALTER INDEX staging.telegram_messages_next_pk RENAME TO telegram_messages_pk").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}

	staging := []models.StagingMessage{{
		MessageKey:  "abc",
		MessageID:   1,
		ChannelName: "chemed",
		MessageDate: time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
		MessageText: "hello",
	}}

	require.NoError(t, store.PublishStaging(context.Background(), staging))
	require.NoError(t, store.PublishStaging(context.Background(), staging))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishMartsRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS marts.dim_channels_next").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE marts.dim_channels_next").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO marts.dim_channels_next")
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	channels := []models.ChannelDimension{{ChannelKey: "k", ChannelName: "chemed"}}
	err := store.PublishMarts(context.Background(), channels, nil, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
