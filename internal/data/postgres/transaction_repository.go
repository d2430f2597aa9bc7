package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, cert_id, amount, created_at, status, confirm_code, sms_id, sms_sent, sms_error`

const (
	insertTransactionQuery = `
		INSERT INTO transactions (cert_id, amount, status, confirm_code)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	selectTransactionQuery = `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1`

	lockTransactionQuery = selectTransactionQuery + `
		FOR UPDATE`

	updateTransactionStatusQuery = `
		UPDATE transactions
		SET status = $1
		WHERE id = $2`

	cancelOpenedBeforeQuery = `
		UPDATE transactions
		SET status = 'CANCELLED'
		WHERE status = 'OPENED' AND created_at < $1`

	updateDeliveryQuery = `
		UPDATE transactions
		SET sms_id = $1, sms_sent = $2, sms_error = $3
		WHERE id = $4`
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{querier: tx, logger: r.logger}
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	err := r.querier.QueryRow(ctx, insertTransactionQuery,
		t.CertID,
		t.Amount,
		string(t.Status),
		nullString(t.ConfirmCode),
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create transaction", "cert_id", t.CertID, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, err := scanTransaction(r.querier.QueryRow(ctx, selectTransactionQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "tran_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) LockForUpdate(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, err := scanTransaction(r.querier.QueryRow(ctx, lockTransactionQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to lock transaction", "tran_id", id, "error", err)
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status transaction.Status) error {
	tag, err := r.querier.Exec(ctx, updateTransactionStatusQuery, string(status), id)
	if err != nil {
		r.logger.Error("Failed to update transaction status", "tran_id", id, "status", status, "error", err)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}
	return nil
}

func (r *TransactionRepository) CancelOpenedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.querier.Exec(ctx, cancelOpenedBeforeQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel expired transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateDelivery overwrites the delivery columns; replaying the same outcome
// leaves the row unchanged.
func (r *TransactionRepository) UpdateDelivery(ctx context.Context, id int64, d transaction.Delivery) error {
	sent := d.Sent
	tag, err := r.querier.Exec(ctx, updateDeliveryQuery,
		nullString(d.MessageID),
		&sent,
		nullString(d.TruncatedError()),
		id,
	)
	if err != nil {
		r.logger.Error("Failed to record delivery outcome", "tran_id", id, "error", err)
		return fmt.Errorf("failed to record delivery outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{ID: id}
	}
	return nil
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		t           transaction.Transaction
		status      string
		confirmCode *string
	)
	err := row.Scan(
		&t.ID,
		&t.CertID,
		&t.Amount,
		&t.CreatedAt,
		&status,
		&confirmCode,
		&t.SMSID,
		&t.SMSSent,
		&t.SMSError,
	)
	if err != nil {
		return nil, err
	}
	t.Status = transaction.Status(status)
	if confirmCode != nil {
		t.ConfirmCode = *confirmCode
	}
	return &t, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
