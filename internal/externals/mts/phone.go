package mts

import (
	"errors"
	"strings"
)

// ErrIncorrectPhoneNumber is returned for numbers outside the +7 plan.
var ErrIncorrectPhoneNumber = errors.New("not correct phone number")

// NormalizePhone rewrites a holder phone into the 7XXXXXXXXXX form the
// provider expects. A leading "+7" loses its plus and a leading "8" becomes
// "7"; anything else is rejected.
func NormalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(phone, "+7"):
		phone = phone[1:]
	case strings.HasPrefix(phone, "8"):
		phone = "7" + phone[1:]
	case strings.HasPrefix(phone, "7"):
	default:
		return "", ErrIncorrectPhoneNumber
	}
	return phone, nil
}
