package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for rate limit operations, labeled by backend.
var (
	acquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_ratelimit_acquires_total",
			Help: "Total number of rate limit acquire calls by outcome",
		},
		[]string{"backend", "outcome"},
	)

	counterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_ratelimit_errors_total",
			Help: "Total number of rate limit backend errors",
		},
		[]string{"backend"},
	)
)

// Metrics records rate limit metrics for one backend.
type Metrics struct {
	backend string
}

// NewMetrics creates metrics for the given backend label.
func NewMetrics(backend string) *Metrics {
	return &Metrics{backend: backend}
}

// RecordAcquire records an acquire outcome.
func (m *Metrics) RecordAcquire(allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	acquireTotal.WithLabelValues(m.backend, outcome).Inc()
}

// RecordError records a backend error.
func (m *Metrics) RecordError() {
	counterErrorsTotal.WithLabelValues(m.backend).Inc()
}
