package transaction

import (
	"time"
)

// Status is the lifecycle state of a ledger transaction.
type Status string

const (
	StatusOpened    Status = "OPENED"
	StatusCancelled Status = "CANCELLED"
	StatusDone      Status = "DONE"
)

// Terminal reports whether s admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// MaxDeliveryErrorLen bounds the stored delivery error text.
const MaxDeliveryErrorLen = 255

// Transaction is one signed movement against a certificate balance. A
// negative Amount debits the certificate.
type Transaction struct {
	ID          int64     `json:"id"`
	CertID      string    `json:"cert_id"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
	Status      Status    `json:"status"`
	ConfirmCode string    `json:"-"`
	SMSID       *string   `json:"sms_id,omitempty"`
	SMSSent     *bool     `json:"sms_sent,omitempty"`
	SMSError    *string   `json:"sms_error,omitempty"`
}

// Delivery is the notification outcome written back onto a transaction.
type Delivery struct {
	MessageID string
	Sent      bool
	Error     string
}

// TruncatedError returns Error cut to MaxDeliveryErrorLen runes.
func (d Delivery) TruncatedError() string {
	r := []rune(d.Error)
	if len(r) <= MaxDeliveryErrorLen {
		return d.Error
	}
	return string(r[:MaxDeliveryErrorLen])
}
