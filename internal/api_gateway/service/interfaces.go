package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/events"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/ledger"
)

// CertificateService defines the certificate operations exposed over HTTP
type CertificateService interface {
	// GetCertificate returns the public view of a certificate, served from
	// cache while fresh. Returns a ledger NotFoundError if it doesn't exist
	GetCertificate(ctx context.Context, id string) (*CertificateView, error)

	// OpenCharge opens a charge and announces it to the holder. A failed
	// announcement does not fail the charge
	OpenCharge(ctx context.Context, certID string, amount int64) (*ledger.Charge, error)

	ConfirmCharge(ctx context.Context, certID, code string) (*ledger.Confirmation, error)

	CancelTransaction(ctx context.Context, tranID int64) (*transaction.Transaction, error)

	AdjustAmount(ctx context.Context, certID string, amount int64) (*ledger.Adjustment, error)
}

// NotificationService defines the notification operations exposed over HTTP
type NotificationService interface {
	// SendTelegram queues a Telegram photo message describing the certificate
	SendTelegram(ctx context.Context, certID, chatID, imageURL string) error

	// SMSBalance returns the SMS provider account balance
	SMSBalance(ctx context.Context) (decimal.Decimal, error)
}

// Ledger is the subset of *ledger.Engine the services call.
type Ledger interface {
	GetCertificate(ctx context.Context, id string) (*certificate.Certificate, error)
	OpenCharge(ctx context.Context, certID string, amount int64) (*ledger.Charge, error)
	ConfirmCharge(ctx context.Context, certID, code string) (*ledger.Confirmation, error)
	CancelTransaction(ctx context.Context, tranID int64) (*transaction.Transaction, error)
	AdjustAmount(ctx context.Context, certID string, newAmount int64) (*ledger.Adjustment, error)
}

// EventBus is the subset of *notifier.Bus the services call.
type EventBus interface {
	PublishCertificateCharged(ctx context.Context, charge *ledger.Charge) error
	PublishTelegramMessage(ctx context.Context, msg *events.TelegramMessage) error
}

// BalanceSource reports the SMS provider balance.
type BalanceSource interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}
