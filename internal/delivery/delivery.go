// Package delivery holds what the SMS and Telegram workers share: payload
// decoding, journaling and the pooled processor that bounds how many
// provider calls run at once.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/domain/journal"
	"github.com/giftcert-ledger/internal/platform/messaging/consumers"
)

// Payload is a decoded event that can check its own shape.
type Payload interface {
	Validate() error
}

// Decode unmarshals msg into v and validates it. Both failures wrap
// consumers.ErrUnprocessable since redelivery cannot fix them.
func Decode(msg kafka.Message, v Payload) error {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return fmt.Errorf("%w: decode %s message: %v", consumers.ErrUnprocessable, msg.Topic, err)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", consumers.ErrUnprocessable, err)
	}
	return nil
}

// Record appends entry to the journal. The journal is an audit trail only,
// so a nil journal or a failed write is logged and otherwise ignored.
func Record(ctx context.Context, j journal.Repository, logger *slog.Logger, entry *journal.Entry) {
	if j == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if err := j.Append(ctx, entry); err != nil {
		logger.WarnContext(ctx, "Failed to journal delivery outcome",
			"channel", entry.Channel,
			"key", entry.Key,
			"error", err)
	}
}
