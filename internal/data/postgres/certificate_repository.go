// Package postgres provides PostgreSQL implementations of the certificate
// and transaction repositories. Every method runs on either the pool or a
// caller-owned transaction obtained through WithTx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

const certificateColumns = `id, code, nominal, amount, status, created_at, used_at, indefinite, period,
		phone, name, last_name, description, actual_tran_id, updated_at`

const (
	selectCertificateQuery = `SELECT ` + certificateColumns + `
		FROM certificates
		WHERE id = $1`

	lockCertificateQuery = selectCertificateQuery + `
		FOR UPDATE`

	updateCertificateQuery = `
		UPDATE certificates
		SET amount = $1, status = $2, used_at = $3, actual_tran_id = $4, updated_at = NOW()
		WHERE id = $5`

	lockReconcilableQuery = `SELECT ` + certificateColumns + `
		FROM certificates
		WHERE status IN ('ACTIVE', 'EXPIRED') AND indefinite = FALSE AND period IS NOT NULL
		ORDER BY id
		FOR UPDATE`
)

// CertificateRepository implements certificate.Repository for PostgreSQL
type CertificateRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewCertificateRepository(logger *slog.Logger, db *persistence.PostgresDB) certificate.Repository {
	return &CertificateRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *CertificateRepository) WithTx(tx pgx.Tx) certificate.Repository {
	return &CertificateRepository{querier: tx, logger: r.logger}
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*certificate.Certificate, error) {
	cert, err := scanCertificate(r.querier.QueryRow(ctx, selectCertificateQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, certificate.ErrCertificateNotFound{ID: id}
		}
		r.logger.Error("Failed to get certificate", "cert_id", id, "error", err)
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return cert, nil
}

func (r *CertificateRepository) LockForUpdate(ctx context.Context, id string) (*certificate.Certificate, error) {
	cert, err := scanCertificate(r.querier.QueryRow(ctx, lockCertificateQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, certificate.ErrCertificateNotFound{ID: id}
		}
		r.logger.Error("Failed to lock certificate", "cert_id", id, "error", err)
		return nil, fmt.Errorf("failed to lock certificate: %w", err)
	}
	return cert, nil
}

func (r *CertificateRepository) Update(ctx context.Context, cert *certificate.Certificate) error {
	tag, err := r.querier.Exec(ctx, updateCertificateQuery,
		cert.Amount,
		string(cert.Status),
		cert.UsedAt,
		cert.ActualTranID,
		cert.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update certificate", "cert_id", cert.ID, "error", err)
		return fmt.Errorf("failed to update certificate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return certificate.ErrCertificateNotFound{ID: cert.ID}
	}
	return nil
}

func (r *CertificateRepository) LockReconcilable(ctx context.Context) ([]*certificate.Certificate, error) {
	rows, err := r.querier.Query(ctx, lockReconcilableQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select reconcilable certificates: %w", err)
	}
	defer rows.Close()

	var certs []*certificate.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate certificates: %w", err)
	}
	return certs, nil
}

func scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var (
		cert   certificate.Certificate
		status string
	)
	err := row.Scan(
		&cert.ID,
		&cert.Code,
		&cert.Nominal,
		&cert.Amount,
		&status,
		&cert.CreatedAt,
		&cert.UsedAt,
		&cert.Indefinite,
		&cert.Period,
		&cert.Phone,
		&cert.Name,
		&cert.LastName,
		&cert.Description,
		&cert.ActualTranID,
		&cert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cert.Status = certificate.Status(status)
	return &cert, nil
}
