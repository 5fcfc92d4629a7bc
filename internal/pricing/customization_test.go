package pricing

import "testing"

func sampleTable() CustomizationTable {
	return CustomizationTable{
		ScreenPrint: []ScreenPrintOption{
			{ColorCount: 1, Tiers: []Tier{{QuantityMin: 1, QuantityMax: intPtr(49), UnitPrice: MustParse("1.20")}, {QuantityMin: 50, UnitPrice: MustParse("0.80")}}},
			{ColorCount: 3, Tiers: []Tier{{QuantityMin: 1, QuantityMax: intPtr(49), UnitPrice: MustParse("2.40")}, {QuantityMin: 50, UnitPrice: MustParse("1.60")}}},
		},
		Embroidery: []EmbroideryOption{
			{ID: "small", MinStitches: 1, MaxStitches: 5000, Tiers: []Tier{{QuantityMin: 1, UnitPrice: MustParse("3.00")}}},
			{ID: "large", MinStitches: 5001, MaxStitches: 15000, Tiers: []Tier{{QuantityMin: 1, QuantityMax: intPtr(99), UnitPrice: MustParse("5.00")}, {QuantityMin: 100, UnitPrice: MustParse("4.25")}}},
		},
		DigitalPrint: []DigitalPrintOption{
			{ID: "4x4", Label: "4in x 4in", Tiers: []Tier{{QuantityMin: 1, UnitPrice: MustParse("2.10")}}},
		},
	}
}

func TestCustomizationUnitPrice(t *testing.T) {
	table := sampleTable()
	cases := []struct {
		name string
		c    Customization
		qty  int
		want string
	}{
		{"screen print small run", Customization{Kind: ScreenPrint, ColorCount: 3}, 10, "2.40"},
		{"screen print bulk", Customization{Kind: ScreenPrint, ColorCount: 3}, 50, "1.60"},
		{"screen print unknown colors", Customization{Kind: ScreenPrint, ColorCount: 2}, 50, "0.00"},
		{"screen print zero colors", Customization{Kind: ScreenPrint}, 50, "0.00"},
		{"embroidery by stitches", Customization{Kind: Embroidery, StitchCount: 7000}, 120, "4.25"},
		{"embroidery lower band", Customization{Kind: Embroidery, StitchCount: 5000}, 120, "3.00"},
		{"embroidery out of bounds", Customization{Kind: Embroidery, StitchCount: 20000}, 10, "0.00"},
		{"embroidery option mismatch", Customization{Kind: Embroidery, StitchCount: 100, OptionID: "large"}, 10, "0.00"},
		{"digital print", Customization{Kind: DigitalPrint, OptionID: "4X4"}, 3, "2.10"},
		{"digital print missing option", Customization{Kind: DigitalPrint}, 3, "0.00"},
		{"unknown kind", Customization{Kind: "foil"}, 3, "0.00"},
	}
	for _, tc := range cases {
		if got := Format(table.UnitPrice(tc.c, tc.qty)); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestCustomizationUnitTotal(t *testing.T) {
	table := sampleTable()
	total := table.UnitTotal([]Customization{
		{Kind: ScreenPrint, ColorCount: 1},
		{Kind: DigitalPrint, OptionID: "4x4"},
		{Kind: Embroidery, StitchCount: 999999},
	}, 60)
	if got := Format(total); got != "2.90" {
		t.Fatalf("expected 2.90, got %s", got)
	}
}
