package ledger

import (
	"time"

	"github.com/giftcert-ledger/internal/domain/certificate"
)

// RecomputeStatus re-derives a certificate's status from the clock and its
// balance and reports whether the status changed. USED and CANCELLED are
// never touched. An exhausted balance forces USED over EXPIRED and ACTIVE,
// stamping UsedAt with today's date.
func RecomputeStatus(cert *certificate.Certificate, now time.Time) bool {
	if cert.Status.Terminal() {
		return false
	}
	initial := cert.Status
	today := certificate.Date(now)

	next := certificate.StatusActive
	if expiresOn, ok := cert.ExpiresOn(); ok && !today.Before(expiresOn) {
		next = certificate.StatusExpired
	}
	if cert.Amount <= 0 {
		next = certificate.StatusUsed
	}
	if !CanTransitionCertificate(initial, next) {
		return false
	}

	cert.Status = next
	if next == certificate.StatusUsed {
		cert.UsedAt = &today
	}
	return cert.Status != initial
}
