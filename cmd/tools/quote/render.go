package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/noah-isme/promo-storefront/internal/pricing"
)

var (
	accent = lipgloss.Color("#D97706")
	dim    = lipgloss.Color("#6B7280")
	warn   = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle   = lipgloss.NewStyle().Foreground(dim)
	warnStyle  = lipgloss.NewStyle().Foreground(warn).Bold(true)
	totalStyle = lipgloss.NewStyle().Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2)
)

func granularityTitle(g pricing.Granularity) string {
	if g == pricing.PerLine {
		return "Per-line shipping"
	}
	return "Whole-cart shipping"
}

func renderTotals(v pricing.TotalsView) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(granularityTitle(v.Granularity)))
	b.WriteString("\n\n")
	for _, l := range v.Lines {
		name := l.ProductID
		if l.PartID != "" {
			name += "/" + l.PartID
		}
		if l.QuoteOnly {
			fmt.Fprintf(&b, "%-24s x%-5d %s\n", name, l.Quantity, warnStyle.Render("quote only"))
			continue
		}
		fmt.Fprintf(&b, "%-24s x%-5d %10s", name, l.Quantity, l.LineSubtotal)
		detail := fmt.Sprintf("unit %s + custom %s", l.UnitPrice, l.CustomizationUnitTotal)
		if l.ShippingFee != "" {
			detail += ", ship " + l.ShippingFee
		}
		b.WriteString("  " + dimStyle.Render(detail))
		if l.IncompleteCustom > 0 {
			b.WriteString("  " + warnStyle.Render(fmt.Sprintf("%d incomplete", l.IncompleteCustom)))
		}
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(strings.Repeat("─", 48)))
	b.WriteString("\n")
	row := func(label, value string) {
		fmt.Fprintf(&b, "%-31s %10s\n", label, value)
	}
	row("Subtotal", v.OriginalSubtotal)
	row("Discount", "-"+v.DiscountAmount)
	row("Discounted subtotal", v.DiscountedSubtotal)
	row("Shipping", v.ShippingFee)
	b.WriteString(totalStyle.Render(fmt.Sprintf("%-31s %10s", "Total", v.GrandTotal)))
	if v.QuoteOnly {
		b.WriteString("\n" + warnStyle.Render("contains quote-only lines: checkout is not available"))
	}
	return boxStyle.Render(b.String())
}
