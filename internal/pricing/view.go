package pricing

// LineView is the rounded, display-ready form of a PricedLine.
type LineView struct {
	LineID                 string `json:"line_id,omitempty"`
	ProductID              string `json:"product_id"`
	PartID                 string `json:"part_id,omitempty"`
	Quantity               int    `json:"quantity"`
	UnitPrice              string `json:"unit_price,omitempty"`
	CustomizationUnitTotal string `json:"customization_unit_total,omitempty"`
	LineSubtotal           string `json:"line_subtotal,omitempty"`
	ShippingFee            string `json:"shipping_fee,omitempty"`
	QuoteOnly              bool   `json:"quote_only"`
	Invalid                bool   `json:"invalid,omitempty"`
	IncompleteCustom       int    `json:"incomplete_customizations,omitempty"`
}

// TotalsView is the rounded, display-ready form of Totals.
type TotalsView struct {
	Granularity        Granularity `json:"shipping_granularity"`
	Lines              []LineView  `json:"lines"`
	OriginalSubtotal   string      `json:"original_subtotal"`
	DiscountAmount     string      `json:"discount_amount"`
	DiscountedSubtotal string      `json:"discounted_subtotal"`
	ShippingFee        string      `json:"shipping_fee"`
	GrandTotal         string      `json:"grand_total"`
	QuoteOnly          bool        `json:"quote_only"`
}

// View rounds every amount to cents for presentation.
func (t Totals) View() TotalsView {
	lines := make([]LineView, 0, len(t.Lines))
	for _, line := range t.Lines {
		lv := LineView{
			LineID:           line.LineID,
			ProductID:        line.ProductID,
			PartID:           line.PartID,
			Quantity:         line.Quantity,
			QuoteOnly:        line.QuoteOnly,
			Invalid:          line.Invalid,
			IncompleteCustom: line.Incomplete,
		}
		if !line.QuoteOnly && !line.Invalid {
			lv.UnitPrice = Format(line.UnitPrice)
			lv.CustomizationUnitTotal = Format(line.CustomizationUnitTotal)
			lv.LineSubtotal = Format(line.LineSubtotal)
			if t.Granularity == PerLine {
				lv.ShippingFee = Format(line.ShippingFee)
			}
		}
		lines = append(lines, lv)
	}
	return TotalsView{
		Granularity:        t.Granularity,
		Lines:              lines,
		OriginalSubtotal:   Format(t.OriginalSubtotal),
		DiscountAmount:     Format(t.DiscountAmount),
		DiscountedSubtotal: Format(t.DiscountedSubtotal),
		ShippingFee:        Format(t.ShippingFee),
		GrandTotal:         Format(t.GrandTotal),
		QuoteOnly:          t.QuoteOnly(),
	}
}
