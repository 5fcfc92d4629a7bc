package cart

import (
	"context"
	"errors"

	"github.com/noah-isme/promo-storefront/internal/catalog"
	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// PricedCart is a cart together with its freshly computed totals.
type PricedCart struct {
	Cart   Cart
	Totals pricing.Totals
}

// View renders the priced cart for API responses.
func (p PricedCart) View() map[string]any {
	return map[string]any{
		"cart":   p.Cart,
		"totals": p.Totals.View(),
	}
}

// Service prices carts from catalog tier tables.
type Service struct {
	Carts   Store
	Catalog catalog.ProductSource
	Engine  pricing.Engine
}

// Priced loads the caller's cart and prices it at granularity g.
func (s *Service) Priced(ctx context.Context, g pricing.Granularity) (PricedCart, error) {
	if s.Carts == nil {
		return PricedCart{}, errors.New("cart: store not configured")
	}
	c, err := s.Carts.Get(ctx)
	if err != nil {
		return PricedCart{}, err
	}
	return s.Price(ctx, c, g)
}

// Price resolves the price tables of every line and computes totals. Each
// product is fetched once even when it appears on several lines.
func (s *Service) Price(ctx context.Context, c Cart, g pricing.Granularity) (PricedCart, error) {
	if s.Catalog == nil {
		return PricedCart{}, errors.New("cart: catalog not configured")
	}
	products := make(map[string]catalog.Product, len(c.Items))
	lines := make([]pricing.LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		product, ok := products[item.ProductID]
		if !ok {
			p, err := s.Catalog.Product(ctx, item.ProductID)
			if err != nil {
				return PricedCart{}, err
			}
			products[item.ProductID] = p
			product = p
		}
		lines = append(lines, product.LineItem(item.ID, item.PartID, item.Quantity, item.Customizations))
	}
	totals := s.Engine.ComputeCart(lines, g)
	result := "priced"
	if totals.QuoteOnly() {
		result = "quote_only"
	}
	obs.RecordQuote(string(g), result)
	return PricedCart{Cart: c, Totals: totals}, nil
}

// Add validates and adds a line, returning the repriced cart.
func (s *Service) Add(ctx context.Context, in ItemInput) (PricedCart, error) {
	if err := common.ValidateStruct(in); err != nil {
		return PricedCart{}, err
	}
	c, err := s.Carts.AddItem(ctx, in)
	if err != nil {
		return PricedCart{}, err
	}
	return s.Price(ctx, c, pricing.PerCart)
}

// Update validates and changes a line, returning the repriced cart.
func (s *Service) Update(ctx context.Context, itemID string, in ItemUpdate) (PricedCart, error) {
	if err := common.ValidateStruct(in); err != nil {
		return PricedCart{}, err
	}
	c, err := s.Carts.UpdateItem(ctx, itemID, in)
	if err != nil {
		return PricedCart{}, err
	}
	return s.Price(ctx, c, pricing.PerCart)
}

// Remove deletes a line, returning the repriced cart.
func (s *Service) Remove(ctx context.Context, itemID string) (PricedCart, error) {
	c, err := s.Carts.RemoveItem(ctx, itemID)
	if err != nil {
		return PricedCart{}, err
	}
	return s.Price(ctx, c, pricing.PerCart)
}
