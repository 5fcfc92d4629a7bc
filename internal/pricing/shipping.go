package pricing

// Granularity selects how the minimum-order shipping surcharge is applied.
type Granularity string

const (
	// PerCart compares the aggregate discounted subtotal with the threshold
	// (cart summary page).
	PerCart Granularity = "cart"
	// PerLine compares every line's own discounted value with the threshold and
	// sums the fees (checkout page).
	PerLine Granularity = "line"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == PerCart || g == PerLine
}

// ShippingPolicy is a flat surcharge for orders under a minimum value.
type ShippingPolicy struct {
	Threshold Money
	Fee       Money
}

// DefaultShippingPolicy is $100 below a $500 discounted value.
func DefaultShippingPolicy() ShippingPolicy {
	return ShippingPolicy{Threshold: MustParse("500.00"), Fee: MustParse("100.00")}
}

// FeeFor returns the surcharge for a discounted value. A value equal to the
// threshold ships free.
func (p ShippingPolicy) FeeFor(discounted Money) Money {
	if discounted.LessThan(p.Threshold) {
		return p.Fee
	}
	return Zero
}
