package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/obs"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// ProductSource resolves products with their price tables.
type ProductSource interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Service fetches products from the backend catalog and caches their price tables.
type Service struct {
	API    *upstream.Client
	Cache  *Cache
	Engine pricing.Engine
	Logger *zerolog.Logger
}

// Quote is the single-item price preview shown on a product page.
type Quote struct {
	ProductID      string                  `json:"product_id"`
	Quantity       int                     `json:"quantity"`
	Customizations []pricing.Customization `json:"customizations,omitempty"`
	QuoteOnly      bool                    `json:"quote_only"`
	Totals         *pricing.TotalsView     `json:"totals,omitempty"`
}

// Product returns the product, served from cache when possible. Cache
// failures degrade to a direct fetch.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, common.Validation("product id is required", nil)
	}
	key := ProductKey(id)
	var cached Product
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err != nil {
		s.logCacheError(err, key)
	} else if ok {
		return cached, nil
	}

	var raw json.RawMessage
	if err := s.API.Get(ctx, "/api/products/"+upstream.PathEscape(id), nil, &raw); err != nil {
		return Product{}, err
	}
	var product Product
	if err := json.Unmarshal(upstream.Unwrap(raw, "data", "product"), &product); err != nil {
		return Product{}, common.NewAppError("UPSTREAM_ERROR", "catalog returned an unreadable product", http.StatusBadGateway, err)
	}
	if product.ID == "" {
		product.ID = id
	}
	if err := product.Validate(); err != nil {
		return Product{}, common.NewAppError("UPSTREAM_ERROR", "catalog returned inconsistent price tiers", http.StatusBadGateway, err)
	}
	if err := s.Cache.SetJSON(ctx, key, product); err != nil {
		s.logCacheError(err, key)
	}
	return product, nil
}

// Quote prices qty units of a product with the selected customizations.
// Products without tiers yield a quote-only result rather than an error.
func (s *Service) Quote(ctx context.Context, id string, qty int, selected []pricing.Customization) (Quote, error) {
	if qty < 1 {
		return Quote{}, common.Validation("qty must be at least 1", nil)
	}
	product, err := s.Product(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	q := Quote{ProductID: product.ID, Quantity: qty, Customizations: selected}
	totals, err := s.Engine.ComputeItem(product.LineItem("", "", qty, selected))
	if err != nil {
		q.QuoteOnly = true
		obs.RecordQuote("item", "quote_only")
		return q, nil
	}
	view := totals.View()
	q.Totals = &view
	obs.RecordQuote("item", "priced")
	return q, nil
}

func (s *Service) logCacheError(err error, key string) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_error")
}
