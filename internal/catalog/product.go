package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// Product is the pricing-relevant view of a catalog product.
type Product struct {
	ID             string                     `json:"id" yaml:"id"`
	Name           string                     `json:"name" yaml:"name"`
	Slug           string                     `json:"slug,omitempty" yaml:"slug,omitempty"`
	PriceTiers     []pricing.Tier             `json:"price_tiers" yaml:"price_tiers"`
	Customizations pricing.CustomizationTable `json:"customizations" yaml:"customizations"`
}

// QuoteOnly reports whether the product has no published price and must be quoted manually.
func (p Product) QuoteOnly() bool {
	return len(p.PriceTiers) == 0
}

// Validate checks every tier table of the product.
func (p Product) Validate() error {
	if err := pricing.ValidateTiers(p.PriceTiers); err != nil {
		return fmt.Errorf("product %s base tiers: %w", p.ID, err)
	}
	for _, opt := range p.Customizations.ScreenPrint {
		if err := pricing.ValidateTiers(opt.Tiers); err != nil {
			return fmt.Errorf("product %s screen print %d colors: %w", p.ID, opt.ColorCount, err)
		}
	}
	for _, opt := range p.Customizations.Embroidery {
		if err := pricing.ValidateTiers(opt.Tiers); err != nil {
			return fmt.Errorf("product %s embroidery %s: %w", p.ID, opt.ID, err)
		}
	}
	for _, opt := range p.Customizations.DigitalPrint {
		if err := pricing.ValidateTiers(opt.Tiers); err != nil {
			return fmt.Errorf("product %s digital print %s: %w", p.ID, opt.ID, err)
		}
	}
	return nil
}

// LineItem builds a priceable line for qty units of the product.
func (p Product) LineItem(id, partID string, qty int, selected []pricing.Customization) pricing.LineItem {
	return pricing.LineItem{
		ID:             id,
		ProductID:      p.ID,
		PartID:         partID,
		Quantity:       qty,
		BaseTiers:      p.PriceTiers,
		Customizations: selected,
		Options:        p.Customizations,
	}
}

// ParseCustomizations parses the compact query form
// "screen_print:3,embroidery:7000,digital_print:4x4". Embroidery accepts an
// optional option id as a third field ("embroidery:7000:left-chest").
func ParseCustomizations(raw string) ([]pricing.Customization, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]pricing.Customization, 0, len(parts))
	for _, part := range parts {
		fields := strings.Split(strings.TrimSpace(part), ":")
		if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
			return nil, fmt.Errorf("customization %q: expected kind:value", part)
		}
		kind := pricing.CustomizationKind(strings.ToLower(strings.TrimSpace(fields[0])))
		value := strings.TrimSpace(fields[1])
		c := pricing.Customization{Kind: kind}
		switch kind {
		case pricing.ScreenPrint:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("customization %q: color count must be a positive integer", part)
			}
			c.ColorCount = n
		case pricing.Embroidery:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("customization %q: stitch count must be a positive integer", part)
			}
			c.StitchCount = n
			if len(fields) > 2 {
				c.OptionID = strings.TrimSpace(fields[2])
			}
		case pricing.DigitalPrint:
			c.OptionID = value
		default:
			return nil, fmt.Errorf("customization %q: unknown kind", part)
		}
		out = append(out, c)
	}
	return out, nil
}
