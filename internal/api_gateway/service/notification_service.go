package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/notifier"
)

// NotificationServiceImpl implements the NotificationService interface
type NotificationServiceImpl struct {
	ledger  Ledger
	bus     EventBus
	balance BalanceSource
	logger  *slog.Logger
}

func NewNotificationService(logger *slog.Logger, l Ledger, bus EventBus, balance BalanceSource) NotificationService {
	return &NotificationServiceImpl{
		ledger:  l,
		bus:     bus,
		balance: balance,
		logger:  logger.With("component", "notification_service"),
	}
}

// SendTelegram captions the photo with the certificate's current balance
// and status.
func (s *NotificationServiceImpl) SendTelegram(ctx context.Context, certID, chatID, imageURL string) error {
	cert, err := s.ledger.GetCertificate(ctx, certID)
	if err != nil {
		return err
	}
	msg := &events.TelegramMessage{
		ChatID:   chatID,
		Text:     notifier.CertificateCaption(cert),
		ImageURL: imageURL,
	}
	if err := s.bus.PublishTelegramMessage(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish telegram message", "cert_id", certID, "chat_id", chatID, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "Telegram message queued", "cert_id", certID, "chat_id", chatID)
	return nil
}

func (s *NotificationServiceImpl) SMSBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.balance.Balance(ctx)
}
