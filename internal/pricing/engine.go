package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned when a line quantity is below one.
var ErrInvalidQuantity = errors.New("pricing: quantity must be at least 1")

// Config carries the storefront-wide pricing constants.
type Config struct {
	DiscountPercent Money
	Shipping        ShippingPolicy
}

// DefaultConfig returns the 20% storefront discount with the default shipping policy.
func DefaultConfig() Config {
	return Config{DiscountPercent: MustParse("20"), Shipping: DefaultShippingPolicy()}
}

// LineItem is a cart line together with the price tables needed to price it.
type LineItem struct {
	ID             string
	ProductID      string
	PartID         string
	Quantity       int
	BaseTiers      []Tier
	Customizations []Customization
	Options        CustomizationTable
}

// PricedLine is the derived pricing of one line item.
type PricedLine struct {
	LineID                 string
	ProductID              string
	PartID                 string
	Quantity               int
	UnitPrice              Money
	CustomizationUnitTotal Money
	LineSubtotal           Money
	// ShippingFee is only populated when totals are computed PerLine.
	ShippingFee Money
	// QuoteOnly marks a line without resolvable base price; it contributes nothing.
	QuoteOnly bool
	// Invalid marks a line whose quantity is below one; it contributes nothing.
	Invalid bool
	// Incomplete counts selected customizations that did not resolve to a price.
	Incomplete int
}

// Totals is the derived cart or item summary.
type Totals struct {
	Granularity        Granularity
	Lines              []PricedLine
	OriginalSubtotal   Money
	DiscountAmount     Money
	DiscountedSubtotal Money
	ShippingFee        Money
	GrandTotal         Money
}

// QuoteOnly reports whether any line requires a manual quote.
func (t Totals) QuoteOnly() bool {
	for _, line := range t.Lines {
		if line.QuoteOnly {
			return true
		}
	}
	return false
}

// InvalidLines returns the ids of lines that could not be priced because of
// their quantity.
func (t Totals) InvalidLines() []string {
	var ids []string
	for _, line := range t.Lines {
		if line.Invalid {
			ids = append(ids, line.LineID)
		}
	}
	return ids
}

// Engine composes tier resolution, customizations, discount and shipping.
// It holds no state besides its configuration and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine constructs an engine for cfg as given. A zero threshold and fee
// turn the shipping surcharge off.
func NewEngine(cfg Config) Engine {
	return Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e Engine) Config() Config {
	return e.cfg
}

// PriceLine resolves the base unit price and customization add-ons of item.
// ErrNoTiers signals a quote-only product.
func (e Engine) PriceLine(item LineItem) (PricedLine, error) {
	line := PricedLine{
		LineID:                 item.ID,
		ProductID:              item.ProductID,
		PartID:                 item.PartID,
		Quantity:               item.Quantity,
		UnitPrice:              Zero,
		CustomizationUnitTotal: Zero,
		LineSubtotal:           Zero,
		ShippingFee:            Zero,
	}
	if item.Quantity < 1 {
		line.Invalid = true
		return line, ErrInvalidQuantity
	}
	unit, err := UnitPrice(item.BaseTiers, item.Quantity)
	if err != nil {
		line.QuoteOnly = true
		return line, err
	}
	for _, c := range item.Customizations {
		if !item.Options.Complete(c) {
			line.Incomplete++
		}
	}
	line.UnitPrice = unit
	line.CustomizationUnitTotal = item.Options.UnitTotal(item.Customizations, item.Quantity)
	line.LineSubtotal = unit.Add(line.CustomizationUnitTotal).Mul(qty(item.Quantity))
	return line, nil
}

// ComputeCart prices every line and folds the results into cart totals at
// the requested shipping granularity. Quote-only lines and lines with an
// invalid quantity are reported but contribute nothing. The result depends
// only on the set of items, not their order.
func (e Engine) ComputeCart(items []LineItem, g Granularity) Totals {
	if !g.Valid() {
		g = PerCart
	}
	totals := Totals{
		Granularity:      g,
		Lines:            make([]PricedLine, 0, len(items)),
		OriginalSubtotal: Zero,
		ShippingFee:      Zero,
	}
	priced := 0
	for _, item := range items {
		line, err := e.PriceLine(item)
		if err == nil {
			priced++
			totals.OriginalSubtotal = totals.OriginalSubtotal.Add(line.LineSubtotal)
			if g == PerLine {
				lineDiscount := ApplyDiscount(line.LineSubtotal, e.cfg.DiscountPercent)
				line.ShippingFee = e.cfg.Shipping.FeeFor(lineDiscount.Discounted)
				totals.ShippingFee = totals.ShippingFee.Add(line.ShippingFee)
			}
		}
		totals.Lines = append(totals.Lines, line)
	}

	discount := ApplyDiscount(totals.OriginalSubtotal, e.cfg.DiscountPercent)
	totals.DiscountAmount = discount.Amount
	totals.DiscountedSubtotal = discount.Discounted
	if g == PerCart && priced > 0 {
		totals.ShippingFee = e.cfg.Shipping.FeeFor(totals.DiscountedSubtotal)
	}
	totals.GrandTotal = totals.DiscountedSubtotal.Add(totals.ShippingFee)
	return totals
}

// ComputeItem totals a single line as shown on a product page. For one line
// both granularities agree.
func (e Engine) ComputeItem(item LineItem) (Totals, error) {
	if _, err := e.PriceLine(item); err != nil {
		return Totals{}, err
	}
	return e.ComputeCart([]LineItem{item}, PerLine), nil
}

func qty(n int) Money {
	return decimal.NewFromInt(int64(n))
}
