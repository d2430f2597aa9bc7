// Package telegram delivers direct messages to Telegram chats. Delivery is
// a single attempt: the outcome is logged and journaled, never retried and
// never written to ledger rows.
package telegram

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/giftcert-ledger/internal/delivery"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/domain/journal"
	"github.com/giftcert-ledger/internal/platform/gateway"
	"github.com/giftcert-ledger/internal/platform/messaging/consumers"
	"github.com/giftcert-ledger/internal/platform/metrics"
)

// PhotoSender is the Telegram Bot API.
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID, imageURL, caption string) (*gateway.Response, error)
}

type Handler struct {
	topic   string
	sender  PhotoSender
	journal journal.Repository
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ consumers.Processor = (*Handler)(nil)

func NewHandler(topic string, sender PhotoSender, j journal.Repository, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		topic:   topic,
		sender:  sender,
		journal: j,
		logger:  logger.With("component", "telegram_worker"),
		metrics: m,
	}
}

func (h *Handler) Topics() []string {
	return []string{h.topic}
}

// Handle returns an error only for payloads that cannot be decoded.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var m events.TelegramMessage
	if err := delivery.Decode(msg, &m); err != nil {
		return err
	}

	entry := &journal.Entry{
		Channel:  journal.ChannelTelegram,
		Key:      m.ChatID,
		Attempts: 1,
	}

	resp, err := h.sender.SendPhoto(ctx, m.ChatID, m.ImageURL, m.Text)
	if err != nil {
		entry.Error = err.Error()
		h.logger.ErrorContext(ctx, "Telegram message not delivered", "chat_id", m.ChatID, "error", err)
		h.metrics.Delivery(string(journal.ChannelTelegram), "failed")
	} else {
		entry.Delivered = true
		h.logger.InfoContext(ctx, "Telegram message delivered", "chat_id", m.ChatID, "status", resp.StatusCode)
		h.metrics.Delivery(string(journal.ChannelTelegram), "delivered")
	}

	delivery.Record(ctx, h.journal, h.logger, entry)
	return nil
}
