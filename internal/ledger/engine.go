// Package ledger implements the certificate and transaction state machine:
// balance arithmetic, the two-phase confirm-code charge protocol and the
// admin amount correction. Every operation runs as one storage transaction
// with the affected rows locked FOR UPDATE.
package ledger

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/platform/metrics"
	"github.com/giftcert-ledger/internal/platform/persistence"
)

const defaultConfirmCodeLength = 6

// Charge is the result of OpenCharge.
type Charge struct {
	Certificate *certificate.Certificate
	Transaction *transaction.Transaction
	ConfirmCode string
}

// Confirmation is the result of ConfirmCharge.
type Confirmation struct {
	Certificate *certificate.Certificate
	Transaction *transaction.Transaction
}

// Adjustment is the result of AdjustAmount. Transaction is nil when the
// amount did not change.
type Adjustment struct {
	Certificate *certificate.Certificate
	Transaction *transaction.Transaction
}

type Engine struct {
	db      persistence.TxRunner
	certs   certificate.Repository
	trans   transaction.Repository
	cfg     config.LedgerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	genCode func(length int) (string, error)
}

func NewEngine(
	db persistence.TxRunner,
	certs certificate.Repository,
	trans transaction.Repository,
	cfg config.LedgerConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		db:      db,
		certs:   certs,
		trans:   trans,
		cfg:     cfg,
		logger:  logger.With("component", "ledger"),
		metrics: m,
		now:     time.Now,
		genCode: GenerateConfirmCode,
	}
}

// GetCertificate loads a certificate, re-deriving its status and persisting
// the change when there is one.
func (e *Engine) GetCertificate(ctx context.Context, id string) (*certificate.Certificate, error) {
	var cert *certificate.Certificate
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		certs := e.certs.WithTx(tx)

		c, err := lockCertificate(ctx, certs, id)
		if err != nil {
			return err
		}
		if RecomputeStatus(c, e.now()) {
			if err := certs.Update(ctx, c); err != nil {
				return err
			}
			e.logger.InfoContext(ctx, "Certificate status recomputed", "cert_id", c.ID, "status", c.Status)
		}
		cert = c
		return nil
	})
	e.metrics.LedgerOperation("get_certificate", err)
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// OpenCharge reserves nothing: it records an OPENED transaction for
// -amount, points the certificate at it and returns the confirm code the
// holder must present. A still-OPENED transaction the certificate pointed at
// is cancelled first, so at most one charge per certificate is open.
func (e *Engine) OpenCharge(ctx context.Context, certID string, amount int64) (*Charge, error) {
	var charge *Charge
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		certs := e.certs.WithTx(tx)
		trans := e.trans.WithTx(tx)

		cert, err := lockCertificate(ctx, certs, certID)
		if err != nil {
			return err
		}
		RecomputeStatus(cert, e.now())
		if cert.Status != certificate.StatusActive {
			return invalidStatef("certificate %s is %s", cert.ID, cert.Status)
		}
		if amount < 0 {
			return validationf("charge amount must not be negative")
		}
		if amount > cert.Amount {
			return validationf("charge amount %d exceeds balance %d", amount, cert.Amount)
		}

		if err := e.supersedeOpen(ctx, trans, cert); err != nil {
			return err
		}

		code, err := e.genCode(e.codeLength())
		if err != nil {
			return err
		}
		t := &transaction.Transaction{
			CertID:      cert.ID,
			Amount:      -amount,
			Status:      transaction.StatusOpened,
			ConfirmCode: code,
		}
		if err := trans.Create(ctx, t); err != nil {
			return err
		}
		cert.ActualTranID = &t.ID
		if err := certs.Update(ctx, cert); err != nil {
			return err
		}

		charge = &Charge{Certificate: cert, Transaction: t, ConfirmCode: code}
		return nil
	})
	e.metrics.LedgerOperation("open_charge", err)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Charge opened",
		"cert_id", certID,
		"tran_id", charge.Transaction.ID,
		"amount", amount)
	return charge, nil
}

func (e *Engine) supersedeOpen(ctx context.Context, trans transaction.Repository, cert *certificate.Certificate) error {
	if cert.ActualTranID == nil {
		return nil
	}
	prev, err := trans.LockForUpdate(ctx, *cert.ActualTranID)
	if errors.Is(err, transaction.ErrTransactionNotFound{}) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev.Status != transaction.StatusOpened {
		return nil
	}
	if err := trans.UpdateStatus(ctx, prev.ID, transaction.StatusCancelled); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "Open charge superseded", "cert_id", cert.ID, "tran_id", prev.ID)
	return nil
}

// ConfirmCharge applies the certificate's pending charge when code matches
// its confirm code. Checks run in order: missing certificate or pending
// transaction (NotFoundError), a closed or stale transaction or an inactive
// certificate (InvalidStateError), then a wrong code or a debit the balance
// no longer covers (ValidationError). Both rows stay locked until commit, so
// two concurrent confirmations cannot both apply.
func (e *Engine) ConfirmCharge(ctx context.Context, certID, code string) (*Confirmation, error) {
	var result *Confirmation
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		certs := e.certs.WithTx(tx)
		trans := e.trans.WithTx(tx)

		cert, err := lockCertificate(ctx, certs, certID)
		if err != nil {
			return err
		}
		if cert.ActualTranID == nil {
			return &NotFoundError{Entity: "transaction", ID: "pending charge of certificate " + cert.ID}
		}
		t, err := trans.LockForUpdate(ctx, *cert.ActualTranID)
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			return &NotFoundError{Entity: "transaction", ID: strconv.FormatInt(*cert.ActualTranID, 10)}
		}
		if err != nil {
			return err
		}

		now := e.now()
		RecomputeStatus(cert, now)
		if t.Status.Terminal() {
			return invalidStatef("transaction %d is %s", t.ID, t.Status)
		}
		if cert.Status != certificate.StatusActive {
			return invalidStatef("certificate %s is %s", cert.ID, cert.Status)
		}
		if e.cfg.TransactionValidity > 0 && now.Sub(t.CreatedAt) > e.cfg.TransactionValidity {
			return invalidStatef("transaction %d has expired", t.ID)
		}
		if subtle.ConstantTimeCompare([]byte(code), []byte(t.ConfirmCode)) != 1 {
			return validationf("confirm code does not match")
		}
		balance := cert.Amount + t.Amount
		if balance < 0 || balance > cert.Nominal {
			return validationf("charge of %d no longer fits balance %d", -t.Amount, cert.Amount)
		}
		if !CanTransitionTransaction(t.Status, transaction.StatusDone) {
			return invalidStatef("transaction %d cannot be confirmed from %s", t.ID, t.Status)
		}

		cert.Amount = balance
		t.Status = transaction.StatusDone
		RecomputeStatus(cert, now)

		if err := certs.Update(ctx, cert); err != nil {
			return err
		}
		if err := trans.UpdateStatus(ctx, t.ID, t.Status); err != nil {
			return err
		}
		result = &Confirmation{Certificate: cert, Transaction: t}
		return nil
	})
	e.metrics.LedgerOperation("confirm_charge", err)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Charge confirmed",
		"cert_id", certID,
		"tran_id", result.Transaction.ID,
		"amount", result.Certificate.Amount,
		"status", result.Certificate.Status)
	return result, nil
}

// CancelTransaction cancels an OPENED transaction. Cancelling a DONE or
// CANCELLED transaction is a no-op.
func (e *Engine) CancelTransaction(ctx context.Context, tranID int64) (*transaction.Transaction, error) {
	var result *transaction.Transaction
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		trans := e.trans.WithTx(tx)

		t, err := trans.LockForUpdate(ctx, tranID)
		if errors.Is(err, transaction.ErrTransactionNotFound{}) {
			return &NotFoundError{Entity: "transaction", ID: strconv.FormatInt(tranID, 10)}
		}
		if err != nil {
			return err
		}
		result = t
		if t.Status != transaction.StatusOpened {
			return nil
		}
		if err := trans.UpdateStatus(ctx, t.ID, transaction.StatusCancelled); err != nil {
			return err
		}
		t.Status = transaction.StatusCancelled
		return nil
	})
	e.metrics.LedgerOperation("cancel_transaction", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdjustAmount sets the balance directly and records the delta as a DONE
// transaction.
func (e *Engine) AdjustAmount(ctx context.Context, certID string, newAmount int64) (*Adjustment, error) {
	var result *Adjustment
	err := e.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		certs := e.certs.WithTx(tx)
		trans := e.trans.WithTx(tx)

		cert, err := lockCertificate(ctx, certs, certID)
		if err != nil {
			return err
		}
		if newAmount > cert.Nominal {
			return validationf("amount %d exceeds nominal %d", newAmount, cert.Nominal)
		}
		if newAmount < 0 {
			return validationf("amount must not be negative")
		}

		result = &Adjustment{Certificate: cert}
		if delta := newAmount - cert.Amount; delta != 0 {
			t := &transaction.Transaction{
				CertID: cert.ID,
				Amount: delta,
				Status: transaction.StatusDone,
			}
			if err := trans.Create(ctx, t); err != nil {
				return err
			}
			result.Transaction = t
		}

		cert.Amount = newAmount
		RecomputeStatus(cert, e.now())
		return certs.Update(ctx, cert)
	})
	e.metrics.LedgerOperation("adjust_amount", err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) codeLength() int {
	if e.cfg.ConfirmCodeLength > 0 {
		return e.cfg.ConfirmCodeLength
	}
	return defaultConfirmCodeLength
}

func lockCertificate(ctx context.Context, certs certificate.Repository, id string) (*certificate.Certificate, error) {
	cert, err := certs.LockForUpdate(ctx, id)
	if errors.Is(err, certificate.ErrCertificateNotFound{}) {
		return nil, &NotFoundError{Entity: "certificate", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// GenerateConfirmCode returns length decimal digits drawn from crypto/rand.
func GenerateConfirmCode(length int) (string, error) {
	ten := big.NewInt(10)
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("failed to generate confirm code: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
