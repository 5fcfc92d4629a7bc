package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/promo-storefront/internal/catalog"
	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// cartFile is the YAML input of the price command.
type cartFile struct {
	DiscountPercent *pricing.Money `yaml:"discount_percent"`
	Shipping        *struct {
		Threshold pricing.Money `yaml:"threshold"`
		Fee       pricing.Money `yaml:"fee"`
	} `yaml:"shipping"`
	Products []catalog.Product `yaml:"products"`
	Items    []cartItem        `yaml:"items"`
}

type cartItem struct {
	ID             string                  `yaml:"id"`
	ProductID      string                  `yaml:"product_id"`
	PartID         string                  `yaml:"part_id"`
	Quantity       int                     `yaml:"quantity"`
	Customizations []pricing.Customization `yaml:"customizations"`
	// Compact is the query-string form, e.g. "screen_print:2,embroidery:7000".
	Compact string `yaml:"customizations_compact"`
}

func loadCartFile(path string) (cartFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return cartFile{}, fmt.Errorf("read cart: %w", err)
	}
	var f cartFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return cartFile{}, fmt.Errorf("parse cart %s: %w", path, err)
	}
	if len(f.Items) == 0 && len(f.Products) == 0 {
		return cartFile{}, errors.New("cart file has no products or items")
	}
	return f, nil
}

// config merges file overrides onto base.
func (f cartFile) config(base pricing.Config) pricing.Config {
	if f.DiscountPercent != nil {
		base.DiscountPercent = *f.DiscountPercent
	}
	if f.Shipping != nil {
		base.Shipping = pricing.ShippingPolicy{Threshold: f.Shipping.Threshold, Fee: f.Shipping.Fee}
	}
	return base
}

// lineItems resolves each item against the embedded products.
func (f cartFile) lineItems() ([]pricing.LineItem, error) {
	products := make(map[string]catalog.Product, len(f.Products))
	for _, p := range f.Products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	items := make([]pricing.LineItem, 0, len(f.Items))
	for i, it := range f.Items {
		p, ok := products[it.ProductID]
		if !ok {
			// Unknown products are priced as quote-only lines.
			p = catalog.Product{ID: it.ProductID}
		}
		selected := it.Customizations
		if it.Compact != "" {
			parsed, err := catalog.ParseCustomizations(it.Compact)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			selected = append(selected, parsed...)
		}
		id := it.ID
		if id == "" {
			id = fmt.Sprintf("line-%d", i+1)
		}
		items = append(items, p.LineItem(id, it.PartID, it.Quantity, selected))
	}
	return items, nil
}
