package pricing

import "strings"

// CustomizationKind discriminates decoration add-ons.
type CustomizationKind string

const (
	ScreenPrint  CustomizationKind = "screen_print"
	Embroidery   CustomizationKind = "embroidery"
	DigitalPrint CustomizationKind = "digital_print"
)

// Customization is a decoration selected for a line item. Only the field
// matching Kind is meaningful: ColorCount for screen print, StitchCount (and
// optionally OptionID) for embroidery, OptionID for digital print.
type Customization struct {
	Kind        CustomizationKind `json:"kind" yaml:"kind"`
	ColorCount  int               `json:"color_count,omitempty" yaml:"color_count,omitempty"`
	StitchCount int               `json:"stitch_count,omitempty" yaml:"stitch_count,omitempty"`
	OptionID    string            `json:"option_id,omitempty" yaml:"option_id,omitempty"`
}

// ScreenPrintOption prices screen printing with a fixed number of ink colors.
type ScreenPrintOption struct {
	ColorCount int    `json:"color_count" yaml:"color_count"`
	Tiers      []Tier `json:"tiers" yaml:"tiers"`
}

// EmbroideryOption prices embroidery for stitch counts within [MinStitches, MaxStitches].
type EmbroideryOption struct {
	ID          string `json:"id" yaml:"id"`
	MinStitches int    `json:"min_stitches" yaml:"min_stitches"`
	MaxStitches int    `json:"max_stitches" yaml:"max_stitches"`
	Tiers       []Tier `json:"tiers" yaml:"tiers"`
}

// DigitalPrintOption prices one imprint size.
type DigitalPrintOption struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Tiers []Tier `json:"tiers" yaml:"tiers"`
}

// CustomizationTable holds the decoration price tables offered for a product.
type CustomizationTable struct {
	ScreenPrint  []ScreenPrintOption  `json:"screen_print,omitempty" yaml:"screen_print,omitempty"`
	Embroidery   []EmbroideryOption   `json:"embroidery,omitempty" yaml:"embroidery,omitempty"`
	DigitalPrint []DigitalPrintOption `json:"digital_print,omitempty" yaml:"digital_print,omitempty"`
}

// UnitPrice returns the per-unit price of c at qty. Incomplete or unknown
// configurations price at zero so they drop out of the total until corrected.
func (t CustomizationTable) UnitPrice(c Customization, qty int) Money {
	tiers, ok := t.tiersFor(c)
	if !ok {
		return Zero
	}
	price, err := UnitPrice(tiers, qty)
	if err != nil {
		return Zero
	}
	return price
}

// Complete reports whether c resolves to a priceable option.
func (t CustomizationTable) Complete(c Customization) bool {
	tiers, ok := t.tiersFor(c)
	return ok && len(tiers) > 0
}

// UnitTotal sums the per-unit prices of every selected customization.
func (t CustomizationTable) UnitTotal(selected []Customization, qty int) Money {
	total := Zero
	for _, c := range selected {
		total = total.Add(t.UnitPrice(c, qty))
	}
	return total
}

func (t CustomizationTable) tiersFor(c Customization) ([]Tier, bool) {
	switch c.Kind {
	case ScreenPrint:
		if c.ColorCount <= 0 {
			return nil, false
		}
		for _, opt := range t.ScreenPrint {
			if opt.ColorCount == c.ColorCount {
				return opt.Tiers, true
			}
		}
	case Embroidery:
		if c.StitchCount <= 0 {
			return nil, false
		}
		for _, opt := range t.Embroidery {
			if c.OptionID != "" && !strings.EqualFold(opt.ID, c.OptionID) {
				continue
			}
			if c.StitchCount >= opt.MinStitches && c.StitchCount <= opt.MaxStitches {
				return opt.Tiers, true
			}
		}
	case DigitalPrint:
		id := strings.TrimSpace(c.OptionID)
		if id == "" {
			return nil, false
		}
		for _, opt := range t.DigitalPrint {
			if strings.EqualFold(opt.ID, id) {
				return opt.Tiers, true
			}
		}
	}
	return nil, false
}
