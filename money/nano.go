// Package money converts between decimal amount strings and 9-digit
// fixed-point integers ("nano" units).
package money

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a nano amount
const Decimals = 9

// One is a single whole unit expressed in nano
const One int64 = 1_000_000_000

// ErrInvalidAmount is returned for strings that are not plain decimals or
// that overflow int64 once scaled.
var ErrInvalidAmount = errors.New("invalid amount")

// either side of the point may be empty, not both
var amountPattern = regexp.MustCompile(`^-?([0-9]+\.?[0-9]*|\.[0-9]+)$`)

// ToNano parses a decimal string into nano units. Digits beyond the ninth
// fractional place are truncated, never rounded.
func ToNano(amount string) (int64, error) {
	if !amountPattern.MatchString(amount) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, amount, err)
	}

	scaled := d.Shift(Decimals).Truncate(0).BigInt()
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, amount)
	}
	return scaled.Int64(), nil
}

// MustToNano is ToNano for constants known to be valid
func MustToNano(amount string) int64 {
	n, err := ToNano(amount)
	if err != nil {
		panic(err)
	}
	return n
}

// FromNano renders nano units as a decimal string without trailing zeros
// or a trailing decimal point.
func FromNano(nano int64) string {
	return decimal.New(nano, -Decimals).String()
}
