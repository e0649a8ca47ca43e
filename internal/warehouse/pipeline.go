package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/transform"
)

// Store is the persistence surface the pipeline runs against.
type Store interface {
	RawMessages(ctx context.Context) ([]models.RawMessage, error)
	RawDetections(ctx context.Context) ([]models.RawDetection, error)
	DateKeys(ctx context.Context) ([]int, error)
	PublishStaging(ctx context.Context, staging []models.StagingMessage) error
	PublishMarts(ctx context.Context, channels []models.ChannelDimension, messages []models.MessageFact, detections []models.DetectionFact) error
}

// Sink mirrors published marts to an analytical store. Mirroring happens
// after the authoritative publish; a sink failure degrades the run to a
// warning recorded in the report, the Postgres tables already hold the
// new output and the next run re-mirrors in full.
type Sink interface {
	MirrorMarts(ctx context.Context, channels []models.ChannelDimension, messages []models.MessageFact, detections []models.DetectionFact) error
}

// Metrics carries the pipeline's Prometheus instruments. All fields are
// optional; a nil Metrics disables instrumentation.
type Metrics struct {
	Runs          *prometheus.CounterVec   // labeled by status
	StageDuration *prometheus.HistogramVec // labeled by stage
	Rows          *prometheus.GaugeVec     // labeled by table
}

// Pipeline runs the full raw-to-marts transformation as one batch over a
// single snapshot of the raw tables. Runs are idempotent: unchanged raw
// input reproduces identical derived tables.
type Pipeline struct {
	store     Store
	sink      Sink
	logger    logging.Logger
	metrics   *Metrics
	reportDir string
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithSink mirrors each successful publish to an analytical sink.
func WithSink(sink Sink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// WithMetrics records run and stage metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithReportDir writes a JSON run report after every run.
func WithReportDir(dir string) Option {
	return func(p *Pipeline) { p.reportDir = dir }
}

func NewPipeline(store Store, logger logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline once. The returned report is non-nil even on
// failure and carries whatever stages completed.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	report := newRunReport()
	log := p.logger.WithField("run_id", report.RunID)
	log.Info("Pipeline run started")

	err := p.run(ctx, report, log)
	report.finish(err)

	if p.metrics != nil && p.metrics.Runs != nil {
		p.metrics.Runs.WithLabelValues(report.Status).Inc()
	}
	if p.reportDir != "" {
		if path, werr := report.WriteFile(p.reportDir); werr != nil {
			log.WithError(werr).Warn("Failed to write run report")
		} else {
			log.WithField("path", path).Debug("Wrote run report")
		}
	}

	if err != nil {
		log.WithError(err).Error("Pipeline run failed")
		return report, err
	}
	log.WithFields(logging.Fields{
		"duration":           report.TotalDuration().String(),
		"skipped_detections": report.SkippedDetections,
	}).Info("Pipeline run succeeded")
	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report *RunReport, log *logrus.Entry) error {
	raw, err := p.store.RawMessages(ctx)
	if err != nil {
		return fmt.Errorf("read raw messages: %w", err)
	}
	rawDetections, err := p.store.RawDetections(ctx)
	if err != nil {
		return fmt.Errorf("read raw detections: %w", err)
	}
	dateKeys, err := p.store.DateKeys(ctx)
	if err != nil {
		return fmt.Errorf("read date keys: %w", err)
	}
	dates := transform.NewDateIndex(dateKeys)

	start := time.Now()
	staging := transform.NormalizeMessages(raw)
	p.endStage(report, "normalize", len(staging), start)

	start = time.Now()
	channels := transform.AggregateChannels(staging)
	p.endStage(report, "aggregate_channels", len(channels), start)

	start = time.Now()
	facts, err := transform.BuildMessageFacts(staging, channels, dates)
	if err != nil {
		return fmt.Errorf("build message facts: %w", err)
	}
	p.endStage(report, "build_message_facts", len(facts), start)

	start = time.Now()
	enriched := transform.EnrichDetections(rawDetections, facts)
	report.SkippedDetections = enriched.Skipped
	p.endStage(report, "enrich_detections", len(enriched.Facts), start)

	start = time.Now()
	if err := p.store.PublishStaging(ctx, staging); err != nil {
		return fmt.Errorf("publish staging: %w", err)
	}
	if err := p.store.PublishMarts(ctx, channels, facts, enriched.Facts); err != nil {
		return fmt.Errorf("publish marts: %w", err)
	}
	p.endStage(report, "publish", len(staging)+len(channels)+len(facts)+len(enriched.Facts), start)

	if p.sink != nil {
		start = time.Now()
		mirrored := len(channels) + len(facts) + len(enriched.Facts)
		if err := p.sink.MirrorMarts(ctx, channels, facts, enriched.Facts); err != nil {
			report.MirrorError = err.Error()
			mirrored = 0
			log.WithError(err).Warn("Mirror to analytical sink failed, Postgres output stands")
		}
		p.endStage(report, "mirror", mirrored, start)
	}

	p.recordRows("staging_telegram_messages", len(staging))
	p.recordRows("dim_channels", len(channels))
	p.recordRows("fct_messages", len(facts))
	p.recordRows("fct_image_detections", len(enriched.Facts))

	log.WithFields(logging.Fields{
		"raw_messages":   len(raw),
		"raw_detections": len(rawDetections),
		"staging":        len(staging),
		"channels":       len(channels),
		"message_facts":  len(facts),
		"detections":     len(enriched.Facts),
	}).Info("Pipeline stages complete")
	return nil
}

// endStage records one completed stage in the report and metrics.
func (p *Pipeline) endStage(report *RunReport, name string, rows int, start time.Time) {
	elapsed := time.Since(start)
	report.addStage(name, rows, elapsed)
	if p.metrics != nil && p.metrics.StageDuration != nil {
		p.metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
}

func (p *Pipeline) recordRows(table string, rows int) {
	if p.metrics != nil && p.metrics.Rows != nil {
		p.metrics.Rows.WithLabelValues(table).Set(float64(rows))
	}
}
