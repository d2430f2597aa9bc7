package ledger

import (
	"github.com/giftcert-ledger/internal/domain/certificate"
	"github.com/giftcert-ledger/internal/domain/transaction"
)

// CertificateTransitions lists the statuses each certificate status may move
// to. ACTIVE and EXPIRED are re-derivable from time and flip both ways.
var CertificateTransitions = map[certificate.Status][]certificate.Status{
	certificate.StatusActive:    {certificate.StatusExpired, certificate.StatusUsed, certificate.StatusCancelled},
	certificate.StatusExpired:   {certificate.StatusActive, certificate.StatusUsed, certificate.StatusCancelled},
	certificate.StatusUsed:      nil,
	certificate.StatusCancelled: nil,
}

// TransactionTransitions lists the statuses each transaction status may move
// to. Nothing returns to OPENED.
var TransactionTransitions = map[transaction.Status][]transaction.Status{
	transaction.StatusOpened:    {transaction.StatusDone, transaction.StatusCancelled},
	transaction.StatusDone:      nil,
	transaction.StatusCancelled: nil,
}

// CanTransitionCertificate reports whether from may become to. Staying in
// the same status is always allowed.
func CanTransitionCertificate(from, to certificate.Status) bool {
	if from == to {
		return true
	}
	for _, next := range CertificateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionTransaction reports whether from may become to.
func CanTransitionTransaction(from, to transaction.Status) bool {
	if from == to {
		return true
	}
	for _, next := range TransactionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
