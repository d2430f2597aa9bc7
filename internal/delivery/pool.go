package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/platform/messaging/consumers"
)

const defaultPoolSize = 10

// NewPool creates the worker pool shared by every PooledProcessor of one
// process.
func NewPool(size int) (*ants.Pool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery worker pool: %w", err)
	}
	return pool, nil
}

// PooledProcessor runs each Handle call of the wrapped Processor on a shared
// ants pool and waits for the result, so consumers in one process never
// have more provider calls in flight than the pool has workers. Waiting
// keeps per-partition order intact.
type PooledProcessor struct {
	next   consumers.Processor
	pool   *ants.Pool
	logger *slog.Logger
}

var _ consumers.Processor = (*PooledProcessor)(nil)

func NewPooledProcessor(next consumers.Processor, pool *ants.Pool, logger *slog.Logger) *PooledProcessor {
	return &PooledProcessor{
		next:   next,
		pool:   pool,
		logger: logger.With("component", "delivery_pool"),
	}
}

func (p *PooledProcessor) Topics() []string {
	return p.next.Topics()
}

func (p *PooledProcessor) Handle(ctx context.Context, msg kafka.Message) error {
	result := make(chan error, 1)

	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Delivery handler panicked", "topic", msg.Topic, "offset", msg.Offset, "panic", r)
				result <- fmt.Errorf("delivery handler panicked: %v", r)
			}
		}()
		result <- p.next.Handle(ctx, msg)
	})
	if err != nil {
		p.logger.Error("Failed to submit message to worker pool",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return fmt.Errorf("failed to submit message to worker pool: %w", err)
	}

	return <-result
}

// Running returns the number of running workers in the pool.
func (p *PooledProcessor) Running() int {
	return p.pool.Running()
}
