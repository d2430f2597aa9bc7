package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
)

// memStore is an in-memory ledger. ExecuteTx serializes units of work the
// way row locks would and restores the previous state when fn fails.
type memStore struct {
	mu     sync.Mutex
	certs  map[string]certificate.Certificate
	trans  map[int64]transaction.Transaction
	nextID int64
	now    func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		certs: map[string]certificate.Certificate{},
		trans: map[int64]transaction.Transaction{},
		now:   now,
	}
}

func (s *memStore) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	certs := make(map[string]certificate.Certificate, len(s.certs))
	for k, v := range s.certs {
		certs[k] = v
	}
	trans := make(map[int64]transaction.Transaction, len(s.trans))
	for k, v := range s.trans {
		trans[k] = v
	}
	nextID := s.nextID

	if err := fn(nil); err != nil {
		s.certs, s.trans, s.nextID = certs, trans, nextID
		return err
	}
	return nil
}

func (s *memStore) put(c certificate.Certificate) {
	s.certs[c.ID] = c
}

func (s *memStore) cert(id string) certificate.Certificate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.certs[id]
}

func (s *memStore) tran(id int64) transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trans[id]
}

type memCertificates struct{ s *memStore }

func (r memCertificates) GetByID(_ context.Context, id string) (*certificate.Certificate, error) {
	c, ok := r.s.certs[id]
	if !ok {
		return nil, certificate.ErrCertificateNotFound{ID: id}
	}
	return &c, nil
}

func (r memCertificates) LockForUpdate(ctx context.Context, id string) (*certificate.Certificate, error) {
	return r.GetByID(ctx, id)
}

func (r memCertificates) Update(_ context.Context, c *certificate.Certificate) error {
	if _, ok := r.s.certs[c.ID]; !ok {
		return certificate.ErrCertificateNotFound{ID: c.ID}
	}
	r.s.certs[c.ID] = *c
	return nil
}

func (r memCertificates) LockReconcilable(context.Context) ([]*certificate.Certificate, error) {
	var out []*certificate.Certificate
	for _, c := range r.s.certs {
		if (c.Status == certificate.StatusActive || c.Status == certificate.StatusExpired) && !c.Indefinite && c.Period != nil {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memCertificates) WithTx(pgx.Tx) certificate.Repository { return r }

type memTransactions struct{ s *memStore }

func (r memTransactions) Create(_ context.Context, t *transaction.Transaction) error {
	r.s.nextID++
	t.ID = r.s.nextID
	t.CreatedAt = r.s.now()
	r.s.trans[t.ID] = *t
	return nil
}

func (r memTransactions) GetByID(_ context.Context, id int64) (*transaction.Transaction, error) {
	t, ok := r.s.trans[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound{ID: id}
	}
	return &t, nil
}

func (r memTransactions) LockForUpdate(ctx context.Context, id int64) (*transaction.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r memTransactions) UpdateStatus(_ context.Context, id int64, status transaction.Status) error {
	t, ok := r.s.trans[id]
	if !ok {
		return transaction.ErrTransactionNotFound{ID: id}
	}
	t.Status = status
	r.s.trans[id] = t
	return nil
}

func (r memTransactions) CancelOpenedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, t := range r.s.trans {
		if t.Status == transaction.StatusOpened && t.CreatedAt.Before(cutoff) {
			t.Status = transaction.StatusCancelled
			r.s.trans[id] = t
			n++
		}
	}
	return n, nil
}

func (r memTransactions) UpdateDelivery(_ context.Context, id int64, d transaction.Delivery) error {
	t, ok := r.s.trans[id]
	if !ok {
		return transaction.ErrTransactionNotFound{ID: id}
	}
	sent := d.Sent
	t.SMSSent = &sent
	r.s.trans[id] = t
	return nil
}

func (r memTransactions) WithTx(pgx.Tx) transaction.Repository { return r }
