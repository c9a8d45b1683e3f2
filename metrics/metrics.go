// Package metrics exposes the engine's Prometheus metrics: computation
// counts and latencies per operation, k-anonymity denials, audit chain
// growth and export outcomes per backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ComputationsTotal counts dispatched computations by operation and
	// outcome (completed, denied, failed).
	ComputationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_computations_total",
		Help: "Dispatched computations by operation and outcome.",
	}, []string{"operation", "outcome"})

	// ComputationDuration observes end-to-end computation latency.
	ComputationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_computation_duration_seconds",
		Help:    "End-to-end computation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// KAnonymityDenials counts aggregate queries rejected by the cohort
	// size gate.
	KAnonymityDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_k_anonymity_denials_total",
		Help: "Aggregate queries rejected for insufficient cohort size.",
	})

	// AuditBlocksTotal counts blocks appended to audit chains.
	AuditBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_audit_blocks_total",
		Help: "Blocks appended to audit chains.",
	})

	// ExportsTotal counts audit exports by backend and outcome.
	ExportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_exports_total",
		Help: "Audit exports by backend and outcome.",
	}, []string{"backend", "outcome"})

	// SessionsActive tracks live sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_sessions_active",
		Help: "Currently live sessions.",
	})
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
