package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Yenenesh12/medical-telegram-warehouse/internal/logging"
)

// Raw ingest topics. Scraper and detector collaborators publish here.
const (
	TopicRawMessages   = "telegram.messages.raw"
	TopicRawDetections = "telegram.detections.raw"
)

// Message is one consumed Kafka record.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// Handler processes one record. A returned error blocks the record's
// partition so the offset is not committed past the failure.
type Handler func(ctx context.Context, msg Message) error

// Consumer polls the raw ingest topics and routes records to per-topic
// handlers. Commits are manual: within a poll, a partition whose handler
// failed commits only up to the last success, so the failed record is
// redelivered on restart.
type Consumer struct {
	client   *kgo.Client
	logger   logging.Logger
	groupID  string
	handlers map[string]Handler
	mu       sync.RWMutex

	messagesTotal     *prometheus.CounterVec   // topic, operation, status
	operationDuration *prometheus.HistogramVec // operation
}

// NewConsumer creates a consumer joined to the given group. The metrics
// instruments are optional.
func NewConsumer(brokers []string, groupID, clientID string, logger logging.Logger, messagesTotal *prometheus.CounterVec, operationDuration *prometheus.HistogramVec) (*Consumer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ClientID(clientID),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client:            client,
		logger:            logger,
		groupID:           groupID,
		handlers:          make(map[string]Handler),
		messagesTotal:     messagesTotal,
		operationDuration: operationDuration,
	}, nil
}

// AddHandler registers a handler for a topic and subscribes to it.
func (c *Consumer) AddHandler(topic string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	c.client.AddConsumeTopics(topic)
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// Start polls until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			fetches := c.client.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Errorf("errors while polling: %v", errs)
				continue
			}

			iter := fetches.RecordIter()
			records := make([]*kgo.Record, 0)
			for !iter.Done() {
				records = append(records, iter.Next())
			}

			commitRecords := c.processRecords(ctx, records)
			if len(commitRecords) > 0 {
				if err := c.client.CommitRecords(ctx, commitRecords...); err != nil {
					c.logger.WithError(err).Error("failed to commit records")
				}
			}
		}
	}
}

func (c *Consumer) processRecords(ctx context.Context, records []*kgo.Record) []*kgo.Record {
	type topicPartition struct {
		topic     string
		partition int32
	}
	blocked := make(map[topicPartition]bool)
	lastSuccess := make(map[topicPartition]*kgo.Record)

	for _, record := range records {
		tp := topicPartition{topic: record.Topic, partition: record.Partition}
		if blocked[tp] {
			// A prior message in this topic/partition failed. We must not
			// process or commit later offsets, otherwise we'd skip the failed
			// message on restart.
			continue
		}

		c.mu.RLock()
		handler, exists := c.handlers[record.Topic]
		c.mu.RUnlock()

		if !exists {
			// No handler registered - still commit to avoid reprocessing
			c.logger.WithField("topic", record.Topic).Warn("No handler registered for topic")
			lastSuccess[tp] = record
			continue
		}

		msg := Message{
			Key:       record.Key,
			Value:     record.Value,
			Topic:     record.Topic,
			Partition: record.Partition,
			Offset:    record.Offset,
			Timestamp: record.Timestamp,
		}

		handlerStart := time.Now()
		err := handler(ctx, msg)
		c.observe("consume", handlerStart)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"topic":     record.Topic,
				"partition": record.Partition,
				"offset":    record.Offset,
			}).Error("Failed to handle message - will retry on restart")
			c.count(record.Topic, "error")
			// Block this partition to avoid committing offsets beyond the failed message.
			blocked[tp] = true
			continue
		}

		c.count(record.Topic, "success")
		lastSuccess[tp] = record
	}

	if len(lastSuccess) == 0 {
		return nil
	}

	commitRecords := make([]*kgo.Record, 0, len(lastSuccess))
	for _, record := range lastSuccess {
		commitRecords = append(commitRecords, record)
	}
	return commitRecords
}

func (c *Consumer) count(topic, status string) {
	if c.messagesTotal != nil {
		c.messagesTotal.WithLabelValues(topic, "consume", status).Inc()
	}
}

func (c *Consumer) observe(operation string, start time.Time) {
	if c.operationDuration != nil {
		c.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Client exposes the underlying kgo client for health checks.
func (c *Consumer) Client() *kgo.Client {
	return c.client
}

// HealthCheck pings the broker.
func (c *Consumer) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}
