package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/promo-storefront/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	BackendBaseURL     string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64
	CurrencyCode       string
	NotifyOpsEmail     string

	Pricing  pricing.Config
	Gateway  GatewayConfig
	Outbound OutboundConfig
	Checkout CheckoutConfig
	Limits   LimitConfig
	Obs      ObsConfig

	CatalogCacheTTL   time.Duration
	WorkerConcurrency int
}

// GatewayConfig describes the card-payment gateway.
type GatewayConfig struct {
	URL      string
	Username string
	Password string
	AppKey   string
	Timeout  time.Duration
}

// OutboundConfig tunes collaborator HTTP clients.
type OutboundConfig struct {
	Timeout             time.Duration
	RetryBase           time.Duration
	RetryMaxAttempts    int
	RetryJitterPercent  int
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration
}

// CheckoutConfig controls the checkout attempt lifecycle.
type CheckoutConfig struct {
	IdempotencyTTL       time.Duration
	LockTTL              time.Duration
	CompensationMaxRetry int
}

// LimitConfig configures request rate limits.
type LimitConfig struct {
	RPSPerIP                int
	CheckoutRateLimitMax    int
	CheckoutRateLimitWindow time.Duration
}

// ObsConfig configures logging, metrics and tracing.
type ObsConfig struct {
	LogFormat            string
	LogLevel             string
	EnablePrometheus     bool
	EnableTracing        bool
	OTLPEndpoint         string
	TracingSamplingRatio float64
	MetricsNamespace     string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	discount, err := parseMoney(k.String("PRICING_DISCOUNT_PERCENT"), "20")
	if err != nil {
		return nil, fmt.Errorf("PRICING_DISCOUNT_PERCENT: %w", err)
	}
	threshold, err := parseMoney(k.String("SHIPPING_THRESHOLD"), "500.00")
	if err != nil {
		return nil, fmt.Errorf("SHIPPING_THRESHOLD: %w", err)
	}
	fee, err := parseMoney(k.String("SHIPPING_FEE"), "100.00")
	if err != nil {
		return nil, fmt.Errorf("SHIPPING_FEE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		BackendBaseURL:     strings.TrimRight(strings.TrimSpace(k.String("BACKEND_BASE_URL")), "/"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		CurrencyCode:       strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),
		NotifyOpsEmail:     strings.TrimSpace(k.String("NOTIFY_OPS_EMAIL")),
		Pricing: pricing.Config{
			DiscountPercent: discount,
			Shipping:        pricing.ShippingPolicy{Threshold: threshold, Fee: fee},
		},
		Gateway: GatewayConfig{
			URL:      strings.TrimRight(strings.TrimSpace(k.String("PAYMENT_GATEWAY_URL")), "/"),
			Username: k.String("PAYMENT_GATEWAY_USERNAME"),
			Password: k.String("PAYMENT_GATEWAY_PASSWORD"),
			AppKey:   k.String("PAYMENT_GATEWAY_APP_KEY"),
			Timeout:  parseDuration(k.String("PAYMENT_TIMEOUT"), "30s"),
		},
		Outbound: OutboundConfig{
			Timeout:             parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),
			RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
			RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
			RetryJitterPercent:  parseInt(k.String("RETRY_JITTER_PERCENT"), 20),
			CircuitMinRequests:  parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 20),
			CircuitFailureRatio: parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
			CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),
		},
		Checkout: CheckoutConfig{
			IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
			LockTTL:              parseDuration(k.String("CHECKOUT_LOCK_TTL"), "2m"),
			CompensationMaxRetry: parseInt(k.String("COMPENSATION_MAX_RETRY"), 10),
		},
		Limits: LimitConfig{
			RPSPerIP:                parseInt(k.String("RATE_LIMIT_RPS_PER_IP"), 20),
			CheckoutRateLimitMax:    parseInt(k.String("CHECKOUT_RATE_LIMIT_MAX"), 5),
			CheckoutRateLimitWindow: parseDuration(k.String("CHECKOUT_RATE_LIMIT_WINDOW"), "1m"),
		},
		Obs: ObsConfig{
			LogFormat:            valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:             valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			EnablePrometheus:     parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:        parseBool(k.String("OBS_ENABLE_TRACING")),
			OTLPEndpoint:         strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSamplingRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			MetricsNamespace:     valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
		},
		CatalogCacheTTL:   parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.BackendBaseURL == "" {
		return nil, errors.New("BACKEND_BASE_URL is required")
	}
	if discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
		return nil, errors.New("PRICING_DISCOUNT_PERCENT must be between 0 and 100")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func parseMoney(value, fallback string) (decimal.Decimal, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	return decimal.NewFromString(base)
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
