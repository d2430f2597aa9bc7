package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
)

func TestRecomputeStatus(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	period := 30
	usedOn := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		cert       certificate.Certificate
		now        time.Time
		wantStatus certificate.Status
		wantChange bool
	}{
		{
			name:       "active within period",
			cert:       certificate.Certificate{Status: certificate.StatusActive, Amount: 10, CreatedAt: created, Period: &period},
			now:        created.AddDate(0, 0, 29),
			wantStatus: certificate.StatusActive,
		},
		{
			name:       "expires on the last day boundary",
			cert:       certificate.Certificate{Status: certificate.StatusActive, Amount: 10, CreatedAt: created, Period: &period},
			now:        created.AddDate(0, 0, 30),
			wantStatus: certificate.StatusExpired,
			wantChange: true,
		},
		{
			name:       "expired becomes active when the period allows",
			cert:       certificate.Certificate{Status: certificate.StatusExpired, Amount: 10, CreatedAt: created, Period: &period},
			now:        created.AddDate(0, 0, 3),
			wantStatus: certificate.StatusActive,
			wantChange: true,
		},
		{
			name:       "indefinite never expires",
			cert:       certificate.Certificate{Status: certificate.StatusActive, Amount: 10, CreatedAt: created, Period: &period, Indefinite: true},
			now:        created.AddDate(5, 0, 0),
			wantStatus: certificate.StatusActive,
		},
		{
			name:       "no period never expires",
			cert:       certificate.Certificate{Status: certificate.StatusActive, Amount: 10, CreatedAt: created},
			now:        created.AddDate(5, 0, 0),
			wantStatus: certificate.StatusActive,
		},
		{
			name:       "empty balance forces used over expired",
			cert:       certificate.Certificate{Status: certificate.StatusActive, Amount: 0, CreatedAt: created, Period: &period},
			now:        created.AddDate(0, 2, 0),
			wantStatus: certificate.StatusUsed,
			wantChange: true,
		},
		{
			name:       "used is terminal",
			cert:       certificate.Certificate{Status: certificate.StatusUsed, Amount: 0, CreatedAt: created, UsedAt: &usedOn},
			now:        created.AddDate(1, 0, 0),
			wantStatus: certificate.StatusUsed,
		},
		{
			name:       "cancelled is terminal",
			cert:       certificate.Certificate{Status: certificate.StatusCancelled, Amount: 10, CreatedAt: created, Period: &period},
			now:        created.AddDate(1, 0, 0),
			wantStatus: certificate.StatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := tt.cert
			changed := RecomputeStatus(&cert, tt.now)
			assert.Equal(t, tt.wantChange, changed)
			assert.Equal(t, tt.wantStatus, cert.Status)

			again := RecomputeStatus(&cert, tt.now)
			assert.False(t, again)
			assert.Equal(t, tt.wantStatus, cert.Status)
		})
	}
}

func TestRecomputeStatus_StampsUsedAt(t *testing.T) {
	now := time.Date(2024, 2, 2, 18, 0, 0, 0, time.UTC)
	cert := certificate.Certificate{Status: certificate.StatusActive, Amount: 0, Nominal: 100}

	assert.True(t, RecomputeStatus(&cert, now))
	if assert.NotNil(t, cert.UsedAt) {
		assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), *cert.UsedAt)
	}

	cancelled := certificate.Certificate{Status: certificate.StatusCancelled, Amount: 0}
	assert.False(t, RecomputeStatus(&cancelled, now))
	assert.Nil(t, cancelled.UsedAt)
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransitionCertificate(certificate.StatusActive, certificate.StatusExpired))
	assert.True(t, CanTransitionCertificate(certificate.StatusExpired, certificate.StatusActive))
	assert.True(t, CanTransitionCertificate(certificate.StatusExpired, certificate.StatusUsed))
	assert.True(t, CanTransitionCertificate(certificate.StatusUsed, certificate.StatusUsed))
	assert.False(t, CanTransitionCertificate(certificate.StatusUsed, certificate.StatusActive))
	assert.False(t, CanTransitionCertificate(certificate.StatusCancelled, certificate.StatusExpired))

	assert.True(t, CanTransitionTransaction(transaction.StatusOpened, transaction.StatusDone))
	assert.True(t, CanTransitionTransaction(transaction.StatusOpened, transaction.StatusCancelled))
	assert.False(t, CanTransitionTransaction(transaction.StatusDone, transaction.StatusOpened))
	assert.False(t, CanTransitionTransaction(transaction.StatusCancelled, transaction.StatusDone))
}
