package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/promo-storefront/internal/config"
	"github.com/noah-isme/promo-storefront/internal/resilience"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// NewUpstream builds a collaborator client with its own circuit breaker.
// timeout bounds each attempt; zero falls back to the outbound default.
func NewUpstream(target, baseURL string, timeout time.Duration, out config.OutboundConfig, logger zerolog.Logger) *upstream.Client {
	if timeout <= 0 {
		timeout = out.Timeout
	}
	l := logger.With().Str("upstream", target).Logger()
	breaker := resilience.NewBreaker(out.CircuitMinRequests, out.CircuitFailureRatio, out.CircuitOpenFor).
		WithTarget(target).
		WithLogger(l)
	return &upstream.Client{
		BaseURL: baseURL,
		Target:  target,
		HTTP: &resilience.HTTPClient{
			Client:      upstream.NewHTTPClient(timeout),
			Breaker:     breaker,
			BaseBackoff: out.RetryBase,
			MaxAttempts: out.RetryMaxAttempts,
			Jitter:      float64(out.RetryJitterPercent) / 100,
			Timeout:     timeout,
			Target:      target,
			Logger:      &l,
		},
	}
}
