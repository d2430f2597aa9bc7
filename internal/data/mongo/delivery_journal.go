package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/giftcert-ledger/internal/domain/journal"
)

const (
	// DeliveryJournalCollectionName is the name of the delivery journal collection in MongoDB
	DeliveryJournalCollectionName = "delivery_journal"
)

// DeliveryJournal implements the journal.Repository interface for MongoDB
type DeliveryJournal struct {
	db     *mongo.Database
	logger *slog.Logger
	now    func() time.Time
}

// NewDeliveryJournal creates a new MongoDB delivery journal
func NewDeliveryJournal(logger *slog.Logger, db *mongo.Database) *DeliveryJournal {
	return &DeliveryJournal{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Append stores one outcome. A zero At is stamped with the current time.
func (r *DeliveryJournal) Append(ctx context.Context, entry *journal.Entry) error {
	if entry.At.IsZero() {
		entry.At = r.now().UTC()
	}

	_, err := r.db.Collection(DeliveryJournalCollectionName).InsertOne(ctx, entry)
	if err != nil {
		r.logger.Error("Failed to append delivery journal entry",
			"channel", entry.Channel,
			"key", entry.Key,
			"tran_id", entry.TranID,
			"error", err)
		return fmt.Errorf("failed to append delivery journal entry: %w", err)
	}
	return nil
}

func (r *DeliveryJournal) ListByTransaction(ctx context.Context, tranID int64) ([]*journal.Entry, error) {
	filter := bson.M{"tran_id": tranID}
	opts := options.Find().SetSort(bson.M{"at": -1})

	entries, err := r.find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list delivery journal entries",
			"tran_id", tranID,
			"error", err)
		return nil, err
	}
	return entries, nil
}

func (r *DeliveryJournal) ListByKey(ctx context.Context, channel journal.Channel, key string, limit int) ([]*journal.Entry, error) {
	filter := bson.M{"channel": channel, "key": key}
	opts := options.Find().
		SetSort(bson.M{"at": -1}).
		SetLimit(int64(limit))

	entries, err := r.find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list delivery journal entries",
			"channel", channel,
			"key", key,
			"error", err)
		return nil, err
	}
	return entries, nil
}

func (r *DeliveryJournal) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*journal.Entry, error) {
	cursor, err := r.db.Collection(DeliveryJournalCollectionName).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery journal: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*journal.Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode delivery journal entries: %w", err)
	}
	return entries, nil
}
