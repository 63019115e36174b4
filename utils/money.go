// utils/money.go
package utils

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency amounts are stored as int64 minor units (paise) so that repeated
// small matches never accumulate floating-point drift.

// ToMinorUnits converts a decimal rupee amount to paise. Amounts with more
// than two decimal places are rejected rather than silently rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	scaled := amount.Mul(decimal.NewFromInt(100))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount.String())
	}
	return scaled.IntPart(), nil
}

// FromMinorUnits converts paise back to a decimal rupee amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}

// Percentage applies a decimal percentage rate to a minor-unit amount,
// rounding half-up to the nearest paisa.
func Percentage(minor int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(minor).
		Mul(rate).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
