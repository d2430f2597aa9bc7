package certificate

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository defines certificate persistence operations
type Repository interface {
	GetByID(ctx context.Context, id string) (*Certificate, error)

	// LockForUpdate reads the row under SELECT ... FOR UPDATE; only meaningful
	// on a repository bound to a transaction.
	LockForUpdate(ctx context.Context, id string) (*Certificate, error)

	// Update persists the mutable columns: amount, status, used_at and
	// actual_tran_id.
	Update(ctx context.Context, cert *Certificate) error

	// LockReconcilable locks every non-terminal certificate with a finite period.
	LockReconcilable(ctx context.Context) ([]*Certificate, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrCertificateNotFound indicates a missing certificate
type ErrCertificateNotFound struct {
	ID string
}

func (e ErrCertificateNotFound) Error() string {
	return "certificate not found: " + e.ID
}

// Is matches any ErrCertificateNotFound regardless of ID.
func (e ErrCertificateNotFound) Is(target error) bool {
	_, ok := target.(ErrCertificateNotFound)
	return ok
}
