package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type balanceView struct {
	Balance string `json:"balance"`
}

func newTestCache(t *testing.T) (*Cache, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, client, "giftcert"), mock
}

func TestCache_Key(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, "giftcert:sms:balance", c.Key("sms:balance"))

	bare := New(slog.Default(), nil, "")
	assert.Equal(t, "sms:balance", bare.Key("sms:balance"))
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()
	c, mock := newTestCache(t)

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("giftcert:k1").SetVal("v1")
		val, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "v1", val)
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("giftcert:k2").RedisNil()
		_, err := c.Get(ctx, "k2")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("backend error", func(t *testing.T) {
		mock.ExpectGet("giftcert:k3").SetErr(errors.New("connection refused"))
		_, err := c.Get(ctx, "k3")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCacheMiss)
		assert.Contains(t, err.Error(), "connection refused")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_SetAndDelete(t *testing.T) {
	ctx := context.Background()
	c, mock := newTestCache(t)

	mock.ExpectSet("giftcert:k1", "v1", time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "k1", "v1", time.Minute))

	mock.ExpectDel("giftcert:a", "giftcert:b").SetVal(2)
	require.NoError(t, c.Delete(ctx, "a", "b"))

	require.NoError(t, c.Delete(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_JSON(t *testing.T) {
	ctx := context.Background()
	c, mock := newTestCache(t)

	mock.ExpectSet("giftcert:balance", `{"balance":"12.50"}`, 5*time.Minute).SetVal("OK")
	require.NoError(t, c.SetJSON(ctx, "balance", balanceView{Balance: "12.50"}, 5*time.Minute))

	mock.ExpectGet("giftcert:balance").SetVal(`{"balance":"12.50"}`)
	var got balanceView
	require.NoError(t, c.GetJSON(ctx, "balance", &got))
	assert.Equal(t, "12.50", got.Balance)

	mock.ExpectGet("giftcert:broken").SetVal(`{not json`)
	assert.ErrorIs(t, c.GetJSON(ctx, "broken", &got), ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}
