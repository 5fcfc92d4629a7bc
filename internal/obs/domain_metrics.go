package obs

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	domainOnce sync.Once

	// CheckoutAttemptsTotal counts checkout attempts by terminal result.
	CheckoutAttemptsTotal *prometheus.CounterVec
	// CheckoutPhaseDuration records the latency of checkout phases in milliseconds.
	CheckoutPhaseDuration *prometheus.HistogramVec
	// CompensationTotal counts void/refund outcomes for orphaned charges.
	CompensationTotal *prometheus.CounterVec
	// QuotesTotal counts priced quotes by granularity and outcome.
	QuotesTotal *prometheus.CounterVec

	checkoutCounter     metric.Int64Counter
	checkoutCounterOnce sync.Once
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_attempts_total",
			Help:      "Count of checkout attempts by result.",
		}, []string{"result"})
		CheckoutPhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_phase_duration_ms",
			Help:      "Latency of checkout phases in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"phase", "result"})
		CompensationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_compensation_total",
			Help:      "Count of compensating refunds for orphaned charges by result.",
		}, []string{"result"})
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of priced quotes by granularity and outcome.",
		}, []string{"granularity", "result"})

		mustRegisterCollector(reg, CheckoutAttemptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutAttemptsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutPhaseDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CheckoutPhaseDuration = v
			}
		})
		mustRegisterCollector(reg, CompensationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CompensationTotal = v
			}
		})
		mustRegisterCollector(reg, QuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesTotal = v
			}
		})
	})
}

// RecordCheckout increments the checkout outcome counters. The Prometheus
// collector is only touched once registered; the OpenTelemetry counter goes to
// the global meter provider.
func RecordCheckout(ctx context.Context, result string) {
	if CheckoutAttemptsTotal != nil {
		CheckoutAttemptsTotal.WithLabelValues(result).Inc()
	}
	checkoutCounterOnce.Do(func() {
		c, err := otel.Meter("promo-storefront/checkout").Int64Counter(
			"checkout.attempts",
			metric.WithDescription("Checkout attempts by result."),
		)
		if err == nil {
			checkoutCounter = c
		}
	})
	if checkoutCounter != nil {
		checkoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// ObservePhase records a checkout phase latency.
func ObservePhase(phase, result string, millis float64) {
	if CheckoutPhaseDuration != nil {
		CheckoutPhaseDuration.WithLabelValues(phase, result).Observe(millis)
	}
}

// RecordCompensation increments the compensation counter.
func RecordCompensation(result string) {
	if CompensationTotal != nil {
		CompensationTotal.WithLabelValues(result).Inc()
	}
}

// RecordQuote increments the quote counter.
func RecordQuote(granularity, result string) {
	if QuotesTotal != nil {
		QuotesTotal.WithLabelValues(granularity, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
