package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/config"
)

// ErrDLQDisabled is returned by a nil DLQProducer.
var ErrDLQDisabled = errors.New("dead-letter topic is not configured")

const headerDLQReason = "dlq-reason"

type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
	now      func() time.Time
}

// DeadLetter is the envelope written to the dead-letter topic.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int    `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	Reason            string `json:"dlq_reason"`
	Timestamp         string `json:"timestamp"`
}

// NewDLQProducer returns a nil producer when cfg.DLQTopic is empty. The topic
// itself is created by EnsureTopics at start-up.
func NewDLQProducer(logger *slog.Logger, cfg *config.KafkaConfig) *DLQProducer {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured, unprocessable messages will stop the worker")
		return nil
	}

	writeTimeout := cfg.ProducerWriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: writeTimeout,
	}

	return &DLQProducer{
		logger:   logger.With("component", "dlq_producer"),
		writer:   writer,
		dlqTopic: cfg.DLQTopic,
		now:      time.Now,
	}
}

func (p *DLQProducer) PublishToDLQ(ctx context.Context, original kafka.Message, reason string) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	value, err := json.Marshal(DeadLetter{
		OriginalTopic:     original.Topic,
		OriginalPartition: original.Partition,
		OriginalOffset:    original.Offset,
		OriginalKey:       string(original.Key),
		OriginalValue:     string(original.Value),
		Reason:            reason,
		Timestamp:         p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	msg := kafka.Message{
		Key:   original.Key,
		Value: value,
		Headers: append(append([]kafka.Header{}, original.Headers...),
			kafka.Header{Key: headerDLQReason, Value: []byte(reason)}),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message to DLQ",
			"topic", p.dlqTopic,
			"key", string(original.Key),
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Warn("Message dead-lettered",
		"topic", p.dlqTopic,
		"original_topic", original.Topic,
		"partition", original.Partition,
		"offset", original.Offset,
		"reason", reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
