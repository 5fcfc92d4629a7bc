package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/catalog"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/resilience"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

const tieredProduct = `{"data":{
	"id":"p-1",
	"name":"Tote bag",
	"price_tiers":[
		{"quantity_min":1,"quantity_max":99,"unit_price":"10.00"},
		{"quantity_min":100,"quantity_max":null,"unit_price":"8.00"}
	],
	"customizations":{
		"screen_print":[{"color_count":2,"tiers":[{"quantity_min":1,"quantity_max":null,"unit_price":"0.50"}]}]
	}
}}`

func newService(t *testing.T, handler http.HandlerFunc) (*catalog.Service, *miniredis.Miniredis) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &catalog.Service{
		API: &upstream.Client{
			BaseURL: srv.URL,
			Target:  "catalog",
			HTTP:    &resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1, Timeout: time.Second},
		},
		Cache:  catalog.NewCache(rdb, time.Minute),
		Engine: pricing.NewEngine(pricing.DefaultConfig()),
	}, mr
}

func TestProductIsCached(t *testing.T) {
	var hits atomic.Int32
	svc, mr := newService(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/api/products/p-1", r.URL.Path)
		_, _ = w.Write([]byte(tieredProduct))
	})

	first, err := svc.Product(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, first.PriceTiers, 2)
	require.True(t, mr.Exists(catalog.ProductKey("p-1")))

	second, err := svc.Product(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), hits.Load())
	require.True(t, first.PriceTiers[1].UnitPrice.Equal(second.PriceTiers[1].UnitPrice))
	require.Nil(t, second.PriceTiers[1].QuantityMax)
}

func TestProductRejectsOverlappingTiers(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p-2","price_tiers":[
			{"quantity_min":1,"quantity_max":50,"unit_price":"5"},
			{"quantity_min":40,"quantity_max":null,"unit_price":"4"}]}`))
	})
	_, err := svc.Product(context.Background(), "p-2")
	require.Error(t, err)
	require.ErrorIs(t, err, pricing.ErrOverlappingTiers)
}

func TestQuoteScenarios(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/products/custom" {
			_, _ = w.Write([]byte(`{"id":"custom","name":"Custom","price_tiers":[]}`))
			return
		}
		_, _ = w.Write([]byte(tieredProduct))
	})
	ctx := context.Background()

	bulk, err := svc.Quote(ctx, "p-1", 150, nil)
	require.NoError(t, err)
	require.False(t, bulk.QuoteOnly)
	require.Equal(t, "8.00", bulk.Totals.Lines[0].UnitPrice)
	require.Equal(t, "1200.00", bulk.Totals.OriginalSubtotal)
	require.Equal(t, "960.00", bulk.Totals.DiscountedSubtotal)
	require.Equal(t, "0.00", bulk.Totals.ShippingFee)
	require.Equal(t, "960.00", bulk.Totals.GrandTotal)

	small, err := svc.Quote(ctx, "p-1", 5, nil)
	require.NoError(t, err)
	require.Equal(t, "100.00", small.Totals.ShippingFee)
	require.Equal(t, "140.00", small.Totals.GrandTotal)

	decorated, err := svc.Quote(ctx, "p-1", 100, []pricing.Customization{{Kind: pricing.ScreenPrint, ColorCount: 2}})
	require.NoError(t, err)
	require.Equal(t, "0.50", decorated.Totals.Lines[0].CustomizationUnitTotal)
	require.Equal(t, "850.00", decorated.Totals.OriginalSubtotal)

	quoteOnly, err := svc.Quote(ctx, "custom", 10, nil)
	require.NoError(t, err)
	require.True(t, quoteOnly.QuoteOnly)
	require.Nil(t, quoteOnly.Totals)
}

func TestQuoteHandler(t *testing.T) {
	svc, _ := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tieredProduct))
	})
	h := catalog.NewHandler(catalog.HandlerConfig{Service: svc})
	router := chi.NewRouter()
	router.Get("/api/v1/products/{productID}/quote", h.Quote)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/quote?qty=150&customizations=screen_print:2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data catalog.Quote `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "1020.00", body.Data.Totals.GrandTotal)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/quote?qty=0", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/products/p-1/quote?qty=3&customizations=foil:1", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
