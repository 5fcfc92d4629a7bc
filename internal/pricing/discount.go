package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Discount is the result of applying a percentage discount to a subtotal.
type Discount struct {
	Amount     Money
	Discounted Money
}

// ApplyDiscount takes percent (0-100) off subtotal. Amount plus Discounted
// always equals the input subtotal; negative subtotals are treated as zero and
// percent is clamped into range.
func ApplyDiscount(subtotal, percent Money) Discount {
	if subtotal.IsNegative() {
		subtotal = Zero
	}
	if percent.IsNegative() {
		percent = Zero
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	amount := subtotal.Mul(percent).Div(hundred)
	return Discount{Amount: amount, Discounted: subtotal.Sub(amount)}
}
