// Package reconciler runs the two background sweeps that keep stored
// statuses in line with the clock: a daily certificate status sweep at local
// midnight and a short-interval expiry of stale OPENED transactions.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/giftcert-ledger/internal/config"
	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
	"github.com/giftcert-ledger/internal/ledger"
	"github.com/giftcert-ledger/internal/platform/metrics"
	"github.com/giftcert-ledger/internal/platform/persistence"
)

const (
	defaultExpiryInterval = time.Minute
	defaultSweepTimeout   = 5 * time.Minute

	sweepCertificates = "certificates"
	sweepTransactions = "transactions"
)

type Reconciler struct {
	db       persistence.TxRunner
	certs    certificate.Repository
	trans    transaction.Repository
	validity time.Duration
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	after    func(time.Duration) <-chan time.Time
}

func New(
	db persistence.TxRunner,
	certs certificate.Repository,
	trans transaction.Repository,
	ledgerCfg config.LedgerConfig,
	cfg config.ReconcilerConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Reconciler {
	interval := cfg.ExpiryInterval
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	timeout := cfg.SweepTimeout
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	return &Reconciler{
		db:       db,
		certs:    certs,
		trans:    trans,
		validity: ledgerCfg.TransactionValidity,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "reconciler"),
		metrics:  m,
		now:      time.Now,
		after:    time.After,
	}
}

// NextMidnight returns the start of the day after now in now's location.
func NextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// SweepCertificates recomputes the status of every non-terminal certificate
// with a finite period and writes back the ones that changed, all in one
// storage transaction. It returns the number of certificates updated.
func (r *Reconciler) SweepCertificates(ctx context.Context) (int, error) {
	var updated int
	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		certs := r.certs.WithTx(tx)

		candidates, err := certs.LockReconcilable(ctx)
		if err != nil {
			return err
		}
		now := r.now()
		for _, c := range candidates {
			from := c.Status
			if !ledger.RecomputeStatus(c, now) {
				continue
			}
			if err := certs.Update(ctx, c); err != nil {
				return fmt.Errorf("failed to update certificate %s: %w", c.ID, err)
			}
			r.logger.Debug("Certificate status changed", "cert_id", c.ID, "from", from, "to", c.Status)
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// CancelExpiredTransactions cancels every OPENED transaction older than the
// validity window in one statement.
func (r *Reconciler) CancelExpiredTransactions(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.validity)
	return r.trans.CancelOpenedBefore(ctx, cutoff)
}

// RunDailySweep sleeps until each local midnight and sweeps certificate
// statuses. It returns when ctx is cancelled.
func (r *Reconciler) RunDailySweep(ctx context.Context) {
	r.logger.Info("Daily certificate sweep started")
	for {
		now := r.now()
		next := NextMidnight(now)
		r.logger.Debug("Next certificate sweep scheduled", "at", next)

		select {
		case <-ctx.Done():
			r.logger.Info("Daily certificate sweep stopped")
			return
		case <-r.after(next.Sub(now)):
		}

		r.run(ctx, sweepCertificates, func(ctx context.Context) (int64, error) {
			n, err := r.SweepCertificates(ctx)
			return int64(n), err
		})
	}
}

// RunExpirySweep cancels stale OPENED transactions immediately and then
// every interval until ctx is cancelled.
func (r *Reconciler) RunExpirySweep(ctx context.Context) {
	r.logger.Info("Transaction expiry sweep started", "interval", r.interval, "validity", r.validity)
	for {
		r.run(ctx, sweepTransactions, r.CancelExpiredTransactions)

		select {
		case <-ctx.Done():
			r.logger.Info("Transaction expiry sweep stopped")
			return
		case <-r.after(r.interval):
		}
	}
}

// run executes one sweep detached from ctx cancellation so a shutdown
// arriving mid-sweep lets it finish. Errors are logged and counted only.
func (r *Reconciler) run(ctx context.Context, name string, sweep func(context.Context) (int64, error)) {
	started := time.Now()
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	n, err := sweep(sweepCtx)
	r.metrics.Sweep(name, started, err)
	if err != nil {
		r.logger.Error("Sweep failed", "sweep", name, "error", err)
		return
	}
	r.logger.Info("Sweep completed", "sweep", name, "affected", n, "duration", time.Since(started))
}
