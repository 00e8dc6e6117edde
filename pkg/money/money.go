// Package money holds the rounding rules for rand amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round rounds half away from zero to two decimal places.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// Percent returns pct percent of amount, rounded to cents.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(pct).Div(hundred))
}

// NetOfFee splits amount into the seller's net and the platform fee. net + fee == amount.
func NetOfFee(amount, feePct decimal.Decimal) (net, fee decimal.Decimal) {
	fee = Percent(amount, feePct)
	net = Round(amount).Sub(fee)
	return net, fee
}

// ToMinor converts a major-unit amount into integer minor units (cents/kobo).
func ToMinor(amount decimal.Decimal) int64 {
	return Round(amount).Mul(hundred).IntPart()
}

// FromMinor converts integer minor units back into a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Parse reads a user or provider supplied amount and rejects non-positive values.
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", raw)
	}
	return Round(d), nil
}

// Format renders an amount with exactly two decimals.
func Format(amount decimal.Decimal) string {
	return Round(amount).StringFixed(2)
}
