package certificate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusUsed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusExpired.Terminal())
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusExpired.Valid())
	assert.False(t, Status("PENDING").Valid())
}

func TestCertificate_ExpiresOn(t *testing.T) {
	period := 30
	created := time.Date(2024, 1, 10, 15, 4, 5, 0, time.UTC)

	t.Run("FinitePeriod", func(t *testing.T) {
		c := &Certificate{CreatedAt: created, Period: &period}
		day, ok := c.ExpiresOn()
		assert.True(t, ok)
		assert.Equal(t, time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), day)
	})

	t.Run("Indefinite", func(t *testing.T) {
		c := &Certificate{CreatedAt: created, Period: &period, Indefinite: true}
		_, ok := c.ExpiresOn()
		assert.False(t, ok)
	})

	t.Run("NoPeriod", func(t *testing.T) {
		c := &Certificate{CreatedAt: created}
		_, ok := c.ExpiresOn()
		assert.False(t, ok)
	})
}

func TestErrCertificateNotFound_Is(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrCertificateNotFound{ID: "abc"})
	assert.True(t, errors.Is(err, ErrCertificateNotFound{}))
	assert.Equal(t, "lookup: certificate not found: abc", err.Error())
}

func TestDate_UsesLocalCalendarDay(t *testing.T) {
	msk := time.FixedZone("MSK", 3*60*60)
	lateEvening := time.Date(2024, 3, 1, 23, 30, 0, 0, msk)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Date(lateEvening))
}
