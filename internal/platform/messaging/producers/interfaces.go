package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// EventPublisher writes one JSON-encoded event to a topic, keyed for
// per-entity ordering.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key, eventType string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks a message that can never be processed.
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, original kafka.Message, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ EventPublisher      = (*EventProducer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
	_ KafkaWriter         = (*kafka.Writer)(nil)
)
