package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

type fakeStore struct {
	messages   []models.RawMessage
	detections []models.RawDetection
	dateKeys   []int

	publishedStaging    []models.StagingMessage
	publishedChannels   []models.ChannelDimension
	publishedFacts      []models.MessageFact
	publishedDetections []models.DetectionFact

	publishStagingErr error
	publishMartsErr   error
}

func (f *fakeStore) RawMessages(context.Context) ([]models.RawMessage, error) {
	return f.messages, nil
}

func (f *fakeStore) RawDetections(context.Context) ([]models.RawDetection, error) {
	return f.detections, nil
}

func (f *fakeStore) DateKeys(context.Context) ([]int, error) {
	return f.dateKeys, nil
}

func (f *fakeStore) PublishStaging(_ context.Context, staging []models.StagingMessage) error {
	if f.publishStagingErr != nil {
		return f.publishStagingErr
	}
	f.publishedStaging = staging
	return nil
}

func (f *fakeStore) PublishMarts(_ context.Context, channels []models.ChannelDimension, messages []models.MessageFact, detections []models.DetectionFact) error {
	if f.publishMartsErr != nil {
		return f.publishMartsErr
	}
	f.publishedChannels = channels
	f.publishedFacts = messages
	f.publishedDetections = detections
	return nil
}

type fakeSink struct {
	calls int
	err   error
}

func (f *fakeSink) MirrorMarts(context.Context, []models.ChannelDimension, []models.MessageFact, []models.DetectionFact) error {
	f.calls++
	return f.err
}

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func testStore() *fakeStore {
	date := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)
	id := int64(1)
	return &fakeStore{
		messages: []models.RawMessage{
			{
				MessageID:   1,
				ChannelName: strPtr("tikvahpharma"),
				MessageDate: timePtr(date),
				MessageText: strPtr("Paracetamol 50 birr available now"),
			},
			{
				MessageID:   2,
				ChannelName: strPtr("chemed"),
				MessageDate: timePtr(date.Add(time.Hour)),
				MessageText: strPtr("Vitamin delivery"),
			},
		},
		detections: []models.RawDetection{
			{
				MessageID:       &id,
				ChannelName:     strPtr("tikvahpharma"),
				ImagePath:       "img.jpg",
				DetectedObjects: json.RawMessage(`[{"object":"bottle","confidence":0.9}]`),
				DetectionCount:  1,
			},
			{
				MessageID:       &id,
				ChannelName:     strPtr("tikvahpharma"),
				ImagePath:       "bad.jpg",
				DetectedObjects: json.RawMessage(`not json`),
				DetectionCount:  1,
			},
		},
		dateKeys: []int{20240610},
	}
}

func TestPipelineRun(t *testing.T) {
	store := testStore()
	pipeline := NewPipeline(store, logging.NewLogger())

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, StatusSucceeded, report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.SkippedDetections)

	assert.Len(t, store.publishedStaging, 2)
	assert.Len(t, store.publishedChannels, 2)
	assert.Len(t, store.publishedFacts, 2)
	assert.Len(t, store.publishedDetections, 1)

	stageNames := make([]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		stageNames = append(stageNames, s.Name)
	}
	assert.Equal(t, []string{"normalize", "aggregate_channels", "build_message_facts", "enrich_detections", "publish"}, stageNames)
}

func TestPipelineIdempotent(t *testing.T) {
	store := testStore()
	pipeline := NewPipeline(store, logging.NewLogger())

	_, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	first := store.publishedFacts

	_, err = pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, store.publishedFacts)
	assert.Equal(t, len(first), len(store.publishedFacts))
}

func TestPipelinePublishFailure(t *testing.T) {
	store := testStore()
	store.publishMartsErr = errors.New("connection reset")
	pipeline := NewPipeline(store, logging.NewLogger())

	report, err := pipeline.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Contains(t, report.Error, "connection reset")
	assert.Empty(t, store.publishedChannels)
}

func TestPipelineMirrorsToSink(t *testing.T) {
	store := testStore()
	sink := &fakeSink{}
	pipeline := NewPipeline(store, logging.NewLogger(), WithSink(sink))

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)

	last := report.Stages[len(report.Stages)-1]
	assert.Equal(t, "mirror", last.Name)
}

func TestPipelineSinkFailureDegradesToWarning(t *testing.T) {
	store := testStore()
	sink := &fakeSink{err: errors.New("clickhouse down")}
	pipeline := NewPipeline(store, logging.NewLogger(), WithSink(sink))

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Contains(t, report.MirrorError, "clickhouse down")
	// The authoritative publish stands.
	assert.Len(t, store.publishedFacts, 2)

	last := report.Stages[len(report.Stages)-1]
	assert.Equal(t, "mirror", last.Name)
	assert.Zero(t, last.Rows)
}

func TestPipelineWritesReportFile(t *testing.T) {
	dir := t.TempDir()
	store := testStore()
	pipeline := NewPipeline(store, logging.NewLogger(), WithReportDir(dir))

	report, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	path := filepath.Join(dir, "pipeline_report_"+report.RunID+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded RunReport
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, report.RunID, loaded.RunID)
	assert.Equal(t, StatusSucceeded, loaded.Status)
	assert.Len(t, loaded.Stages, len(report.Stages))
}
