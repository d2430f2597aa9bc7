// Package shared holds value helpers used across the ledger and its edges.
package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExp is the number of fractional digits balances are kept in.
const MinorUnitExp = 2

var (
	ErrInvalidAmount   = errors.New("amount is not a valid decimal number")
	ErrAmountPrecision = errors.New("amount has more than two fractional digits")
	ErrAmountRange     = errors.New("amount is out of range")
)

// ParseAmount converts a human decimal string ("300", "12.5", "0.99") into
// minor units. It rejects values with sub-minor precision.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromDecimal converts d into minor units.
func FromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(MinorUnitExp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountPrecision, d.String())
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, d.String())
	}
	return scaled.IntPart(), nil
}

// ToDecimal converts minor units back into a decimal value.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExp)
}

// FormatAmount renders minor units with exactly two fractional digits.
func FormatAmount(minor int64) string {
	return ToDecimal(minor).StringFixed(MinorUnitExp)
}
