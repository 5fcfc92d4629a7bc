package pricing

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNoTiers indicates that no price can be resolved and the item must be quoted manually.
	ErrNoTiers = errors.New("pricing: no price tiers")
	// ErrOverlappingTiers is returned by ValidateTiers when two ranges intersect.
	ErrOverlappingTiers = errors.New("pricing: overlapping price tiers")
)

// Tier is a quantity range with its unit price. A nil QuantityMax leaves the
// range open-ended.
type Tier struct {
	QuantityMin int   `json:"quantity_min" yaml:"quantity_min"`
	QuantityMax *int  `json:"quantity_max" yaml:"quantity_max"`
	UnitPrice   Money `json:"unit_price" yaml:"unit_price"`
}

// Contains reports whether qty falls inside the tier range.
func (t Tier) Contains(qty int) bool {
	if qty < t.QuantityMin {
		return false
	}
	return t.QuantityMax == nil || qty <= *t.QuantityMax
}

// ResolveTier selects the unit price tier for qty. Among tiers whose range
// contains qty the one with the greatest QuantityMin wins. A quantity that falls
// into a gap resolves to the nearest lower tier, and a quantity below every
// tier resolves to the lowest tier. The input slice is not modified.
func ResolveTier(tiers []Tier, qty int) (Tier, error) {
	if len(tiers) == 0 {
		return Tier{}, ErrNoTiers
	}
	sorted := sortedTiers(tiers)

	var (
		match      Tier
		matched    bool
		lower      Tier
		lowerFound bool
	)
	for _, tier := range sorted {
		if tier.Contains(qty) {
			match = tier
			matched = true
		}
		if tier.QuantityMin <= qty {
			lower = tier
			lowerFound = true
		}
	}
	switch {
	case matched:
		return match, nil
	case lowerFound:
		return lower, nil
	default:
		return sorted[0], nil
	}
}

// UnitPrice resolves the tier for qty and returns its unit price.
func UnitPrice(tiers []Tier, qty int) (Money, error) {
	tier, err := ResolveTier(tiers, qty)
	if err != nil {
		return Zero, err
	}
	return tier.UnitPrice, nil
}

// ValidateTiers checks that a tier list is well formed: minimums of at least
// one, maximums not below minimums, non-negative prices and no overlap once
// sorted by QuantityMin.
func ValidateTiers(tiers []Tier) error {
	sorted := sortedTiers(tiers)
	for i, tier := range sorted {
		if tier.QuantityMin < 1 {
			return fmt.Errorf("pricing: tier quantity_min %d must be at least 1", tier.QuantityMin)
		}
		if tier.QuantityMax != nil && *tier.QuantityMax < tier.QuantityMin {
			return fmt.Errorf("pricing: tier quantity_max %d below quantity_min %d", *tier.QuantityMax, tier.QuantityMin)
		}
		if tier.UnitPrice.IsNegative() {
			return fmt.Errorf("pricing: tier unit_price %s is negative", tier.UnitPrice)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.QuantityMax == nil || *prev.QuantityMax >= tier.QuantityMin {
			return fmt.Errorf("%w: [%d..] and [%d..]", ErrOverlappingTiers, prev.QuantityMin, tier.QuantityMin)
		}
	}
	return nil
}

func sortedTiers(tiers []Tier) []Tier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].QuantityMin < sorted[j].QuantityMin
	})
	return sorted
}
