package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/promo-storefront/internal/pricing"
)

func newPriceCmd() *cobra.Command {
	var (
		cartPath    string
		granularity string
		discount    string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a YAML cart",
		Long:  "Price every line of a YAML cart with per-line and whole-cart shipping.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadCartFile(cartPath)
			if err != nil {
				return err
			}
			cfg := f.config(pricing.DefaultConfig())
			if discount != "" {
				pct, err := decimal.NewFromString(strings.TrimSpace(discount))
				if err != nil {
					return fmt.Errorf("invalid --discount: %w", err)
				}
				cfg.DiscountPercent = pct
			}
			if cfg.DiscountPercent.IsNegative() || cfg.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
				return fmt.Errorf("discount must be between 0 and 100, got %s", cfg.DiscountPercent)
			}

			modes, err := granularities(granularity)
			if err != nil {
				return err
			}
			items, err := f.lineItems()
			if err != nil {
				return err
			}

			engine := pricing.NewEngine(cfg)
			views := make([]pricing.TotalsView, 0, len(modes))
			for _, g := range modes {
				views = append(views, engine.ComputeCart(items, g).View())
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			for _, v := range views {
				fmt.Fprintln(out, renderTotals(v))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cartPath, "cart", "", "path to the YAML cart")
	cmd.Flags().StringVar(&granularity, "granularity", "both", "shipping granularity: line, cart or both")
	cmd.Flags().StringVar(&discount, "discount", "", "override the discount percentage")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output totals as JSON")
	_ = cmd.MarkFlagRequired("cart")
	return cmd
}

func granularities(raw string) ([]pricing.Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "both":
		return []pricing.Granularity{pricing.PerLine, pricing.PerCart}, nil
	case string(pricing.PerLine):
		return []pricing.Granularity{pricing.PerLine}, nil
	case string(pricing.PerCart):
		return []pricing.Granularity{pricing.PerCart}, nil
	default:
		return nil, fmt.Errorf("unknown granularity %q", raw)
	}
}
