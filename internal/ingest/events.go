package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
	"github.com/Yenenesh12/medical-telegram-warehouse/internal/models"
)

// RawWriter is the slice of the store the ingest handlers need.
type RawWriter interface {
	UpsertRawMessages(ctx context.Context, messages []models.RawMessage) error
	UpsertRawDetections(ctx context.Context, detections []models.RawDetection) error
}

// RawMessageEvent is the envelope published on telegram.messages.raw.
// One event may carry a single message or a scraped batch.
type RawMessageEvent struct {
	Channel  string              `json:"channel"`
	Messages []models.RawMessage `json:"messages"`
}

// RawDetectionEvent is the envelope published on telegram.detections.raw.
type RawDetectionEvent struct {
	Detections []models.RawDetection `json:"detections"`
}

// Handlers routes decoded ingest events into the raw layer. Decode
// failures are terminal for the record, redelivery cannot fix a bad
// payload, so they are logged and dropped rather than blocking the
// partition.
type Handlers struct {
	store  RawWriter
	logger logging.Logger
}

func NewHandlers(store RawWriter, logger logging.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// Register wires the handlers onto their topics.
func (h *Handlers) Register(consumer *Consumer) {
	consumer.AddHandler(TopicRawMessages, h.HandleRawMessages)
	consumer.AddHandler(TopicRawDetections, h.HandleRawDetections)
}

// HandleRawMessages upserts a scraped message batch into raw.telegram_messages.
func (h *Handlers) HandleRawMessages(ctx context.Context, msg Message) error {
	var event RawMessageEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WithError(err).WithFields(logging.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Warn("Dropping undecodable raw message event")
		return nil
	}
	if len(event.Messages) == 0 {
		return nil
	}

	if err := h.store.UpsertRawMessages(ctx, event.Messages); err != nil {
		return fmt.Errorf("upsert %d raw messages from %s: %w", len(event.Messages), event.Channel, err)
	}

	h.logger.WithFields(logging.Fields{
		"channel":  event.Channel,
		"messages": len(event.Messages),
	}).Debug("Ingested raw message batch")
	return nil
}

// HandleRawDetections upserts a detection batch into raw.image_detections.
func (h *Handlers) HandleRawDetections(ctx context.Context, msg Message) error {
	var event RawDetectionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WithError(err).WithFields(logging.Fields{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Warn("Dropping undecodable raw detection event")
		return nil
	}
	if len(event.Detections) == 0 {
		return nil
	}

	if err := h.store.UpsertRawDetections(ctx, event.Detections); err != nil {
		return fmt.Errorf("upsert %d raw detections: %w", len(event.Detections), err)
	}

	h.logger.WithField("detections", len(event.Detections)).Debug("Ingested raw detection batch")
	return nil
}
