package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/platform/correlation"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

const (
	defaultMaxAttempts  = 3
	defaultWriteTimeout = 10 * time.Second
)

// EventProducer publishes notification events. Messages are routed by key
// hash so all events for one certificate or chat land on one partition, and
// every write waits for the full ISR.
type EventProducer struct {
	logger  *slog.Logger
	writer  KafkaWriter
	metrics *metrics.Metrics
}

func NewEventProducer(logger *slog.Logger, cfg *config.KafkaConfig, m *metrics.Metrics) *EventProducer {
	maxAttempts := cfg.ProducerMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	writeTimeout := cfg.ProducerWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	logger = logger.With("component", "event_producer")

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  maxAttempts,
		Async:        false,
		WriteTimeout: writeTimeout,
	}

	return &EventProducer{
		logger:  logger,
		writer:  writer,
		metrics: m,
	}
}

// Publish writes one event. The correlation id on ctx, if any, travels in
// the message headers next to the event type.
func (p *EventProducer) Publish(ctx context.Context, topic, key, eventType string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(eventType)},
		},
	}
	if id := correlation.ID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: events.HeaderCorrelationID, Value: []byte(id)})
	}

	err = p.writer.WriteMessages(ctx, msg)
	p.metrics.EventPublished(topic, err)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish event",
			"topic", topic,
			"key", key,
			"event", eventType,
			"error", err,
		)
		return fmt.Errorf("failed to publish %s event to %s: %w", eventType, topic, err)
	}

	p.logger.DebugContext(ctx, "Published event",
		"topic", topic,
		"key", key,
		"event", eventType,
	)
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing event producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event writer: %w", err)
	}
	return nil
}
