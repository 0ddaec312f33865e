package domain

import "github.com/shopspring/decimal"

// Amounts carry at most two fractional digits and stay below 10^15.
const (
	MinAmountExponent = -2
	maxAmountExponent = 15
)

var maxAmount = decimal.New(1, maxAmountExponent)

// AmountInRange reports whether d is a usable money value. The exponent is
// checked before any comparison: decimal arithmetic on a value like 1e2000000000
// rescales to a coefficient of that many digits.
func AmountInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < MinAmountExponent || exp > maxAmountExponent {
		return false
	}
	return d.Abs().LessThan(maxAmount)
}
