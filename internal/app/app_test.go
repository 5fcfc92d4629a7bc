package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/promo-storefront/internal/config"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/app?sslmode=disable": "pgx5://u:p@db:5432/app?sslmode=disable",
		"postgresql://db/app":                         "pgx5://db/app",
		" pgx5://db/app ":                             "pgx5://db/app",
	}
	for in, want := range cases {
		require.Equal(t, want, MigrateURL(in), in)
	}
}

func TestIPRateLimit(t *testing.T) {
	mw := NewIPRateLimit(memory.NewStore(), 1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, send("10.0.0.2"))
}

func TestIPRateLimitDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := NewIPRateLimit(nil, 10)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewUpstreamRetriesReadsOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out := config.OutboundConfig{
		Timeout:             time.Second,
		RetryBase:           time.Millisecond,
		RetryMaxAttempts:    3,
		CircuitMinRequests:  100,
		CircuitFailureRatio: 0.9,
		CircuitOpenFor:      time.Second,
	}
	client := NewUpstream("catalog", srv.URL, 0, out, zerolog.Nop())
	require.Equal(t, time.Second, client.HTTP.Timeout)

	_, err := client.Send(context.Background(), http.MethodGet, "/api/products/p1", nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 3, hits.Load())

	hits.Store(0)
	_, err = client.Send(context.Background(), http.MethodPost, "/api/orders", nil, map[string]string{"a": "b"})
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())
}
