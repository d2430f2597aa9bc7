// Package consumers runs the consume-handle-commit loop the delivery
// workers are built on. Offsets are committed only after the handler
// returns nil, so a crash redelivers the message that was in flight.
package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/platform/correlation"
	"github.com/giftcert-ledger/internal/platform/messaging/producers"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

// ErrUnprocessable marks a message that will fail the same way on every
// redelivery, such as an undecodable payload. Handlers wrap it; the loop
// dead-letters and commits such messages instead of stopping.
var ErrUnprocessable = errors.New("unprocessable message")

// FatalError stops the consumer loop. The offset of the message it names is
// not committed.
type FatalError struct {
	Topic     string
	Partition int
	Offset    int64
	Err       error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("worker stopped at %s/%d@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Processor handles messages from its topics.
type Processor interface {
	Topics() []string
	Handle(ctx context.Context, msg kafka.Message) error
}

// KafkaReader wraps kafka.Reader methods for testing
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ KafkaReader = (*kafka.Reader)(nil)

const (
	resultCommitted    = "committed"
	resultDeadLettered = "dead_lettered"
	resultFatal        = "fatal"
)

var fetchRetryDelay = time.Second

// KafkaConsumer reads one consumer group and feeds each message to a
// Processor, strictly one at a time.
type KafkaConsumer struct {
	reader  KafkaReader
	dlq     producers.DeadLetterPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	groupID string
}

func NewKafkaConsumer(
	logger *slog.Logger,
	cfg *config.KafkaConfig,
	groupID string,
	topics []string,
	dlq producers.DeadLetterPublisher,
	m *metrics.Metrics,
) *KafkaConsumer {
	return &KafkaConsumer{
		logger:  logger.With("component", "consumer", "group_id", groupID),
		dlq:     dlq,
		metrics: m,
		groupID: groupID,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.BrokerList(),
			GroupID:     groupID,
			GroupTopics: topics,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Run blocks until ctx is cancelled (returning nil) or a message fails with
// anything other than ErrUnprocessable (returning *FatalError).
func (c *KafkaConsumer) Run(ctx context.Context, p Processor) error {
	c.logger.Info("Consumer started", "topics", p.Topics())
	defer c.logger.Info("Consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to fetch message from Kafka", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if err := p.Handle(correlation.WithID(ctx, headerValue(msg, events.HeaderCorrelationID)), msg); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				c.logger.Info("Handler interrupted by shutdown, message left uncommitted",
					"topic", msg.Topic, "offset", msg.Offset)
				return nil
			}
			if !errors.Is(err, ErrUnprocessable) || c.dlq == nil {
				return c.fatal(msg, err)
			}
			if dlqErr := c.dlq.PublishToDLQ(ctx, msg, err.Error()); dlqErr != nil {
				return c.fatal(msg, errors.Join(err, dlqErr))
			}
			c.metrics.MessageConsumed(msg.Topic, resultDeadLettered)
		} else {
			c.metrics.MessageConsumed(msg.Topic, resultCommitted)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit message, it will be redelivered",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaConsumer) fatal(msg kafka.Message, err error) error {
	c.metrics.MessageConsumed(msg.Topic, resultFatal)
	c.logger.Error("Failed to process message, stopping without commit",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)
	return &FatalError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
