// Package notifier publishes notification events after ledger mutations.
// Publishing is outside the ledger's consistency boundary: a failed publish
// is reported to the caller but never undoes the mutation that caused it.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/domain/shared"
	"github.com/giftcert-ledger/internal/ledger"
	"github.com/giftcert-ledger/internal/platform/messaging/producers"
)

type Bus struct {
	publisher     producers.EventPublisher
	smsTopic      string
	telegramTopic string
	logger        *slog.Logger
	now           func() time.Time
}

func NewBus(publisher producers.EventPublisher, cfg *config.KafkaConfig, logger *slog.Logger) *Bus {
	return &Bus{
		publisher:     publisher,
		smsTopic:      cfg.SMSTopic,
		telegramTopic: cfg.TelegramTopic,
		logger:        logger.With("component", "notifier"),
		now:           time.Now,
	}
}

// ChargeEventFrom builds the CERTIFICATE_CHARGED payload for an opened charge.
func ChargeEventFrom(charge *ledger.Charge, ts time.Time) *events.ChargeEvent {
	return &events.ChargeEvent{
		Event:       events.TypeCertificateCharged,
		CertID:      charge.Certificate.ID,
		TranID:      charge.Transaction.ID,
		CertCode:    charge.Certificate.Code,
		ChargeSum:   shared.FormatAmount(-charge.Transaction.Amount),
		ConfirmCode: charge.ConfirmCode,
		Phone:       charge.Certificate.Phone,
		TS:          ts.UTC(),
	}
}

// PublishCertificateCharged publishes the confirm code for an opened charge
// to the SMS topic, keyed by certificate id.
func (b *Bus) PublishCertificateCharged(ctx context.Context, charge *ledger.Charge) error {
	event := ChargeEventFrom(charge, b.now())
	if err := event.Validate(); err != nil {
		return err
	}
	if err := b.publisher.Publish(ctx, b.smsTopic, event.CertID, string(events.TypeCertificateCharged), event); err != nil {
		b.logger.WarnContext(ctx, "Charge notification not published",
			"cert_id", event.CertID,
			"tran_id", event.TranID,
			"error", err)
		return fmt.Errorf("charge notification for transaction %d: %w", event.TranID, err)
	}
	b.logger.InfoContext(ctx, "Charge notification published", "cert_id", event.CertID, "tran_id", event.TranID)
	return nil
}

// PublishTelegramMessage publishes a direct message to the Telegram topic,
// keyed by chat id.
func (b *Bus) PublishTelegramMessage(ctx context.Context, msg *events.TelegramMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := b.publisher.Publish(ctx, b.telegramTopic, msg.ChatID, string(events.TypeSendTelegramMessage), msg); err != nil {
		b.logger.WarnContext(ctx, "Telegram message not published", "chat_id", msg.ChatID, "error", err)
		return fmt.Errorf("telegram message for chat %s: %w", msg.ChatID, err)
	}
	return nil
}

// CertificateCaption is the default Telegram caption for a certificate.
func CertificateCaption(cert *certificate.Certificate) string {
	return fmt.Sprintf("<b>Gift certificate %s</b>\nBalance: %s of %s\nStatus: %s",
		cert.Code,
		shared.FormatAmount(cert.Amount),
		shared.FormatAmount(cert.Nominal),
		cert.Status)
}
