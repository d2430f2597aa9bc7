package certificate

import (
	"time"
)

// Status is the lifecycle state of a certificate.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusUsed      Status = "USED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no recompute may move the certificate out of s.
func (s Status) Terminal() bool {
	return s == StatusUsed || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Certificate is a gift-value instrument. Nominal and Amount are kept in
// minor currency units.
type Certificate struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Nominal      int64      `json:"nominal"`
	Amount       int64      `json:"amount"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	Indefinite   bool       `json:"indefinite"`
	Period       *int       `json:"period,omitempty"` // validity in days
	Phone        string     `json:"phone"`
	Name         string     `json:"name"`
	LastName     string     `json:"last_name"`
	Description  string     `json:"description"`
	ActualTranID *int64     `json:"actual_tran_id,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ExpiresOn returns the first calendar day on which the certificate is
// expired. ok is false for certificates that never expire.
func (c *Certificate) ExpiresOn() (day time.Time, ok bool) {
	if c.Indefinite || c.Period == nil {
		return time.Time{}, false
	}
	return Date(c.CreatedAt).AddDate(0, 0, *c.Period), true
}

// Date returns the calendar day of t, as seen in t's own location, as a
// UTC midnight so days from different zones compare directly.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
