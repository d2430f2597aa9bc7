package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/data/postgres"
	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/platform/persistence"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine *Engine
	store  *memStore
	clock  time.Time
}

func newEngineFixture(t *testing.T, certs ...certificate.Certificate) *engineFixture {
	t.Helper()
	f := &engineFixture{clock: testNow}
	f.store = newMemStore(func() time.Time { return f.clock })
	for _, c := range certs {
		f.store.put(c)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = NewEngine(f.store, memCertificates{f.store}, memTransactions{f.store}, config.LedgerConfig{
		ConfirmCodeLength:   6,
		TransactionValidity: 30 * time.Minute,
	}, logger, nil)
	f.engine.now = func() time.Time { return f.clock }
	return f
}

func activeCertificate(id string, nominal, amount int64) certificate.Certificate {
	return certificate.Certificate{
		ID:        id,
		Code:      "GC-" + id,
		Nominal:   nominal,
		Amount:    amount,
		Status:    certificate.StatusActive,
		CreatedAt: testNow.AddDate(0, -1, 0),
		Phone:     "79161234567",
	}
}

func assertBalanceInvariant(t *testing.T, c certificate.Certificate) {
	t.Helper()
	assert.GreaterOrEqual(t, c.Amount, int64(0))
	assert.LessOrEqual(t, c.Amount, c.Nominal)
}

func TestEngine_OpenThenConfirm(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 300)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusOpened, charge.Transaction.Status)
	assert.Equal(t, int64(-300), charge.Transaction.Amount)
	assert.Len(t, charge.ConfirmCode, 6)
	assert.Equal(t, int64(1000), f.store.cert("c1").Amount)
	require.NotNil(t, f.store.cert("c1").ActualTranID)
	assert.Equal(t, charge.Transaction.ID, *f.store.cert("c1").ActualTranID)

	conf, err := f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	require.NoError(t, err)
	assert.Equal(t, int64(700), conf.Certificate.Amount)
	assert.Equal(t, certificate.StatusActive, conf.Certificate.Status)
	assert.Equal(t, transaction.StatusDone, conf.Transaction.Status)

	stored := f.store.cert("c1")
	assert.Equal(t, int64(700), stored.Amount)
	assert.Equal(t, transaction.StatusDone, f.store.tran(charge.Transaction.ID).Status)
	assertBalanceInvariant(t, stored)
}

func TestEngine_ConfirmExhaustsBalance(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 50))

	charge, err := f.engine.OpenCharge(ctx, "c1", 50)
	require.NoError(t, err)
	conf, err := f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	require.NoError(t, err)

	assert.Equal(t, int64(0), conf.Certificate.Amount)
	assert.Equal(t, certificate.StatusUsed, conf.Certificate.Status)
	require.NotNil(t, conf.Certificate.UsedAt)
	assert.Equal(t, certificate.Date(testNow), *conf.Certificate.UsedAt)

	_, err = f.engine.OpenCharge(ctx, "c1", 10)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, certificate.StatusUsed, f.store.cert("c1").Status)
}

func TestEngine_ConfirmWrongCode(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 300)
	require.NoError(t, err)

	wrong := "000000"
	if charge.ConfirmCode == wrong {
		wrong = "111111"
	}
	_, err = f.engine.ConfirmCharge(ctx, "c1", wrong)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, int64(1000), f.store.cert("c1").Amount)
	assert.Equal(t, transaction.StatusOpened, f.store.tran(charge.Transaction.ID).Status)
}

func TestEngine_ConfirmTwiceAppliesOnce(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 300)
	require.NoError(t, err)

	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	require.NoError(t, err)
	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, int64(700), f.store.cert("c1").Amount)
}

func TestEngine_ConcurrentConfirm(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 400)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(600), f.store.cert("c1").Amount)
}

func TestEngine_ConfirmAfterExpirySweep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 100)
	require.NoError(t, err)

	f.clock = testNow.Add(31 * time.Minute)
	n, err := memTransactions{f.store}.CancelOpenedBefore(ctx, f.clock.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, int64(1000), f.store.cert("c1").Amount)
}

func TestEngine_ConfirmStaleBeforeSweep(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 100)
	require.NoError(t, err)

	f.clock = testNow.Add(45 * time.Minute)
	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Contains(t, stateErr.Reason, "expired")
}

func TestEngine_ConfirmErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown certificate", func(t *testing.T) {
		f := newEngineFixture(t)
		_, err := f.engine.ConfirmCharge(ctx, "missing", "123456")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "certificate", nf.Entity)
	})

	t.Run("no pending charge", func(t *testing.T) {
		f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))
		_, err := f.engine.ConfirmCharge(ctx, "c1", "123456")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("dangling pointer", func(t *testing.T) {
		c := activeCertificate("c1", 1000, 1000)
		ghost := int64(99)
		c.ActualTranID = &ghost
		f := newEngineFixture(t, c)
		_, err := f.engine.ConfirmCharge(ctx, "c1", "123456")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("certificate no longer active", func(t *testing.T) {
		f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))
		charge, err := f.engine.OpenCharge(ctx, "c1", 100)
		require.NoError(t, err)

		f.store.mu.Lock()
		c := f.store.certs["c1"]
		c.Status = certificate.StatusCancelled
		f.store.certs["c1"] = c
		f.store.mu.Unlock()

		_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("balance lowered after open", func(t *testing.T) {
		f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))
		charge, err := f.engine.OpenCharge(ctx, "c1", 800)
		require.NoError(t, err)

		_, err = f.engine.AdjustAmount(ctx, "c1", 500)
		require.NoError(t, err)

		_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
		assert.ErrorIs(t, err, ErrValidation)
		assertBalanceInvariant(t, f.store.cert("c1"))
		assert.Equal(t, int64(500), f.store.cert("c1").Amount)
	})
}

func TestEngine_OpenChargeErrors(t *testing.T) {
	ctx := context.Background()
	expired := activeCertificate("c2", 1000, 1000)
	period := 10
	expired.Period = &period

	f := newEngineFixture(t, activeCertificate("c1", 1000, 400), expired)

	_, err := f.engine.OpenCharge(ctx, "c1", -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.OpenCharge(ctx, "c1", 401)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.engine.OpenCharge(ctx, "c2", 10)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.OpenCharge(ctx, "nope", 10)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Empty(t, f.store.trans)
	assert.Nil(t, f.store.cert("c1").ActualTranID)
}

func TestEngine_OpenChargeSupersedesPending(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	first, err := f.engine.OpenCharge(ctx, "c1", 100)
	require.NoError(t, err)
	second, err := f.engine.OpenCharge(ctx, "c1", 200)
	require.NoError(t, err)

	assert.Equal(t, transaction.StatusCancelled, f.store.tran(first.Transaction.ID).Status)
	assert.Equal(t, transaction.StatusOpened, f.store.tran(second.Transaction.ID).Status)
	assert.Equal(t, second.Transaction.ID, *f.store.cert("c1").ActualTranID)

	conf, err := f.engine.ConfirmCharge(ctx, "c1", second.ConfirmCode)
	require.NoError(t, err)
	assert.Equal(t, int64(800), conf.Certificate.Amount)
}

func TestEngine_OpenChargeCodeFailure(t *testing.T) {
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))
	f.engine.genCode = func(int) (string, error) { return "", errors.New("entropy exhausted") }

	_, err := f.engine.OpenCharge(context.Background(), "c1", 100)
	assert.ErrorContains(t, err, "entropy exhausted")
	assert.Empty(t, f.store.trans)
}

func TestEngine_CancelTransaction(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 100)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelTransaction(ctx, charge.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, cancelled.Status)

	again, err := f.engine.CancelTransaction(ctx, charge.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCancelled, again.Status)

	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.engine.CancelTransaction(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_CancelDoneIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 1000))

	charge, err := f.engine.OpenCharge(ctx, "c1", 100)
	require.NoError(t, err)
	_, err = f.engine.ConfirmCharge(ctx, "c1", charge.ConfirmCode)
	require.NoError(t, err)

	tr, err := f.engine.CancelTransaction(ctx, charge.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusDone, tr.Status)
}

func TestEngine_AdjustAmount(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t, activeCertificate("c1", 1000, 600))

	adj, err := f.engine.AdjustAmount(ctx, "c1", 900)
	require.NoError(t, err)
	require.NotNil(t, adj.Transaction)
	assert.Equal(t, int64(300), adj.Transaction.Amount)
	assert.Equal(t, transaction.StatusDone, adj.Transaction.Status)
	assert.Equal(t, int64(900), f.store.cert("c1").Amount)

	same, err := f.engine.AdjustAmount(ctx, "c1", 900)
	require.NoError(t, err)
	assert.Nil(t, same.Transaction)

	_, err = f.engine.AdjustAmount(ctx, "c1", 1001)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.engine.AdjustAmount(ctx, "c1", -5)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(900), f.store.cert("c1").Amount)

	zero, err := f.engine.AdjustAmount(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(-900), zero.Transaction.Amount)
	assert.Equal(t, certificate.StatusUsed, zero.Certificate.Status)
	assertBalanceInvariant(t, f.store.cert("c1"))
}

func TestEngine_GetCertificatePersistsRecompute(t *testing.T) {
	c := activeCertificate("c1", 1000, 1000)
	period := 10
	c.Period = &period
	f := newEngineFixture(t, c)

	got, err := f.engine.GetCertificate(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusExpired, got.Status)
	assert.Equal(t, certificate.StatusExpired, f.store.cert("c1").Status)

	_, err = f.engine.GetCertificate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateConfirmCode(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateConfirmCode(8)
		require.NoError(t, err)
		assert.Regexp(t, digits, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

// TestEngine_ConfirmChargeSQL runs a confirmation against the PostgreSQL
// repositories to pin down the locking statements and their order.
func TestEngine_ConfirmChargeSQL(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := persistence.NewPostgresDBWithPool(logger, mock)
	engine := NewEngine(db,
		postgres.NewCertificateRepository(logger, db),
		postgres.NewTransactionRepository(logger, db),
		config.LedgerConfig{ConfirmCodeLength: 6, TransactionValidity: 30 * time.Minute},
		logger, nil)
	engine.now = func() time.Time { return testNow }

	tranID := int64(5)
	certRow := pgxmock.NewRows([]string{
		"id", "code", "nominal", "amount", "status", "created_at", "used_at", "indefinite", "period",
		"phone", "name", "last_name", "description", "actual_tran_id", "updated_at",
	}).AddRow("c1", "GC-1", int64(1000), int64(1000), "ACTIVE", testNow.AddDate(0, -1, 0), (*time.Time)(nil), false, (*int)(nil),
		"79161234567", "Ivan", "Petrov", "", &tranID, testNow)
	code := "123456"
	tranRow := pgxmock.NewRows([]string{
		"id", "cert_id", "amount", "created_at", "status", "confirm_code", "sms_id", "sms_sent", "sms_error",
	}).AddRow(tranID, "c1", int64(-300), testNow.Add(-5*time.Minute), "OPENED", &code, nil, nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)FROM certificates\s+WHERE id = \$1\s+FOR UPDATE`).WithArgs("c1").WillReturnRows(certRow)
	mock.ExpectQuery(`(?s)FROM transactions\s+WHERE id = \$1\s+FOR UPDATE`).WithArgs(tranID).WillReturnRows(tranRow)
	mock.ExpectExec(`UPDATE certificates`).
		WithArgs(int64(700), "ACTIVE", (*time.Time)(nil), &tranID, "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE transactions\s+SET status = \$1`).
		WithArgs("DONE", tranID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	conf, err := engine.ConfirmCharge(context.Background(), "c1", code)
	require.NoError(t, err)
	assert.Equal(t, int64(700), conf.Certificate.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
