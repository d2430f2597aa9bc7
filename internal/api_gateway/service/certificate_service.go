package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/shared"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/ledger"
	"github.com/giftcert-ledger/internal/platform/cache"
	"github.com/giftcert-ledger/internal/reconciler"
)

// CertificateView is the public, cacheable rendering of a certificate.
// Amounts are decimal strings with two fractional digits.
type CertificateView struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Nominal     string     `json:"nominal"`
	Amount      string     `json:"amount"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ExpiresOn   string     `json:"expires_on,omitempty"`
}

func NewCertificateView(cert *certificate.Certificate) *CertificateView {
	view := &CertificateView{
		ID:          cert.ID,
		Code:        cert.Code,
		Nominal:     shared.FormatAmount(cert.Nominal),
		Amount:      shared.FormatAmount(cert.Amount),
		Status:      string(cert.Status),
		Description: cert.Description,
		CreatedAt:   cert.CreatedAt,
		UsedAt:      cert.UsedAt,
	}
	if day, ok := cert.ExpiresOn(); ok {
		view.ExpiresOn = day.Format(time.DateOnly)
	}
	return view
}

// CertificateServiceImpl implements the CertificateService interface
type CertificateServiceImpl struct {
	ledger  Ledger
	bus     EventBus
	cache   cache.Store
	viewTTL time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewCertificateService creates a new certificate service. store may be nil,
// in which case every read goes to the ledger.
func NewCertificateService(logger *slog.Logger, l Ledger, bus EventBus, store cache.Store, viewTTL time.Duration) CertificateService {
	return &CertificateServiceImpl{
		ledger:  l,
		bus:     bus,
		cache:   store,
		viewTTL: viewTTL,
		logger:  logger.With("component", "certificate_service"),
		now:     time.Now,
	}
}

func certificateViewKey(id string) string {
	return "certificate:" + id
}

// GetCertificate serves the cached view when present. On a miss the ledger
// re-derives the status and the result is cached until the earlier of the
// view TTL and the next midnight, when the status may change on its own.
func (s *CertificateServiceImpl) GetCertificate(ctx context.Context, id string) (*CertificateView, error) {
	key := certificateViewKey(id)
	if s.cache != nil {
		var cached CertificateView
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "Certificate view cache read failed", "cert_id", id, "error", err)
		}
	}

	cert, err := s.ledger.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	view := NewCertificateView(cert)

	if s.cache != nil {
		now := s.now()
		ttl := reconciler.NextMidnight(now).Sub(now)
		if s.viewTTL > 0 && s.viewTTL < ttl {
			ttl = s.viewTTL
		}
		if err := s.cache.SetJSON(ctx, key, view, ttl); err != nil {
			s.logger.WarnContext(ctx, "Certificate view cache write failed", "cert_id", id, "error", err)
		}
	}
	return view, nil
}

func (s *CertificateServiceImpl) OpenCharge(ctx context.Context, certID string, amount int64) (*ledger.Charge, error) {
	charge, err := s.ledger.OpenCharge(ctx, certID, amount)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, certID)

	// The charge is committed; a caller disconnecting must not drop the event.
	if err := s.bus.PublishCertificateCharged(context.WithoutCancel(ctx), charge); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish charge event",
			"cert_id", certID,
			"tran_id", charge.Transaction.ID,
			"error", err,
		)
	}
	return charge, nil
}

func (s *CertificateServiceImpl) ConfirmCharge(ctx context.Context, certID, code string) (*ledger.Confirmation, error) {
	confirmation, err := s.ledger.ConfirmCharge(ctx, certID, code)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, certID)
	return confirmation, nil
}

func (s *CertificateServiceImpl) CancelTransaction(ctx context.Context, tranID int64) (*transaction.Transaction, error) {
	t, err := s.ledger.CancelTransaction(ctx, tranID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, t.CertID)
	return t, nil
}

func (s *CertificateServiceImpl) AdjustAmount(ctx context.Context, certID string, amount int64) (*ledger.Adjustment, error) {
	adjustment, err := s.ledger.AdjustAmount(ctx, certID, amount)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, certID)
	return adjustment, nil
}

func (s *CertificateServiceImpl) invalidate(ctx context.Context, certID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, certificateViewKey(certID)); err != nil {
		s.logger.WarnContext(ctx, "Certificate view cache invalidation failed", "cert_id", certID, "error", err)
	}
}
