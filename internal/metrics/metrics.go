// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "seatpay"

var (
	// GatewayRequestDuration tracks outbound gateway latency by operation and outcome.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency of calls to the mobile-money gateway.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"operation", "outcome"})

	// PaymentInitiations counts initiate calls by method and outcome.
	PaymentInitiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "initiations_total",
		Help:      "Payment initiation attempts by method and outcome.",
	}, []string{"method", "outcome"})

	// ReconcileOutcomes counts reconciliation results by source (webhook, sweep).
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "reconcile_outcomes_total",
		Help:      "Reconciliation outcomes by event source.",
	}, []string{"source", "outcome"})

	// AmountMismatches counts rejected amounts; every increment is a potential fraud signal.
	AmountMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payment",
		Name:      "amount_mismatches_total",
		Help:      "Amounts that disagreed with the authoritative total.",
	}, []string{"stage"})

	// RateLimitDecisions counts admission decisions per policy.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter admission decisions.",
	}, []string{"policy", "decision"})

	// SweepResults counts stuck payments examined by the reconciliation sweeper.
	SweepResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "payments_total",
		Help:      "Unresolved payments re-queried by the sweeper.",
	}, []string{"result"})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
