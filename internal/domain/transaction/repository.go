package transaction

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository defines transaction persistence operations
type Repository interface {
	// Create inserts t and fills in its ID and CreatedAt.
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, id int64) (*Transaction, error)
	LockForUpdate(ctx context.Context, id int64) (*Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error

	// CancelOpenedBefore flips every OPENED transaction created before cutoff
	// to CANCELLED in one statement and returns the number of rows changed.
	CancelOpenedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	UpdateDelivery(ctx context.Context, id int64, d Delivery) error
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing transaction
type ErrTransactionNotFound struct {
	ID int64
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + strconv.FormatInt(e.ID, 10)
}

// Is matches any ErrTransactionNotFound regardless of ID.
func (e ErrTransactionNotFound) Is(target error) bool {
	_, ok := target.(ErrTransactionNotFound)
	return ok
}
