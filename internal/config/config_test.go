package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/promo-storefront/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":     "postgres://localhost/storefront",
		"REDIS_URL":        "redis://localhost:6379/0",
		"JWT_SECRET":       "secret",
		"BACKEND_BASE_URL": "https://backend.example.com/",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "https://backend.example.com", cfg.BackendBaseURL)
	require.Equal(t, "20.00", cfg.Pricing.DiscountPercent.StringFixed(2))
	require.Equal(t, "500.00", cfg.Pricing.Shipping.Threshold.StringFixed(2))
	require.Equal(t, "100.00", cfg.Pricing.Shipping.Fee.StringFixed(2))
	require.Equal(t, "USD", cfg.CurrencyCode)
	require.Equal(t, 24*time.Hour, cfg.Checkout.IdempotencyTTL)
	require.Equal(t, 3, cfg.Outbound.RetryMaxAttempts)
	require.True(t, cfg.Obs.EnablePrometheus)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PRICING_DISCOUNT_PERCENT"] = "15"
	env["SHIPPING_THRESHOLD"] = "250"
	env["SHIPPING_FEE"] = "25.50"
	env["CHECKOUT_LOCK_TTL"] = "45s"
	env["CORS_ALLOWED_ORIGINS"] = "https://a.example.com, https://b.example.com"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)

	require.Equal(t, "15", cfg.Pricing.DiscountPercent.String())
	require.Equal(t, "250.00", cfg.Pricing.Shipping.Threshold.StringFixed(2))
	require.Equal(t, "25.50", cfg.Pricing.Shipping.Fee.StringFixed(2))
	require.Equal(t, 45*time.Second, cfg.Checkout.LockTTL)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := baseEnv()
	env["BACKEND_BASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "BACKEND_BASE_URL")

	env = baseEnv()
	env["PRICING_DISCOUNT_PERCENT"] = "120"
	_, err = config.LoadForTests(env)
	require.Error(t, err)

	env = baseEnv()
	env["SHIPPING_FEE"] = "abc"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "SHIPPING_FEE")
}
