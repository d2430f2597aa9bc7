package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/giftcert-ledger/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMongoDB_UnreachableServer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.MongoDBConfig{
		URI:         "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=100",
		Database:    "journal_test",
		Timeout:     200 * time.Millisecond,
		MaxPoolSize: 1,
	}

	db, err := NewMongoDB(context.Background(), logger, cfg)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping MongoDB")
}
