package pricing

import "github.com/shopspring/decimal"

// Money is an exact decimal amount. Values are never rounded while pricing;
// Round is applied only when presenting or submitting a total.
type Money = decimal.Decimal

// Zero is the additive identity used when folding line totals.
var Zero = decimal.Zero

// Round rounds a monetary value to cents, half away from zero.
func Round(m Money) Money {
	return m.Round(2)
}

// Format renders a monetary value with exactly two decimal places.
func Format(m Money) string {
	return m.StringFixed(2)
}

// MustParse parses a decimal literal and panics on malformed input. Intended
// for constants and tests.
func MustParse(value string) Money {
	return decimal.RequireFromString(value)
}
