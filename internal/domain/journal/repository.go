package journal

import (
	"context"
)

// Repository persists delivery journal entries
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
	// ListByTransaction returns the entries for one transaction, newest first.
	ListByTransaction(ctx context.Context, tranID int64) ([]*Entry, error)
	// ListByKey returns the latest entries for a cert id or chat id on one channel.
	ListByKey(ctx context.Context, channel Channel, key string, limit int) ([]*Entry, error)
}
