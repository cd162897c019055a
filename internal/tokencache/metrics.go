package tokencache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for token cache operations, labeled by backend.
var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_cache_lookups_total",
			Help: "Total number of token cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	cacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_cache_invalidations_total",
			Help: "Total number of token cache invalidations",
		},
		[]string{"backend"},
	)

	cacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_cache_errors_total",
			Help: "Total number of token cache backend errors",
		},
		[]string{"backend", "operation"},
	)
)

// Metrics records cache metrics for one backend.
type Metrics struct {
	backend string
}

// NewMetrics creates metrics for the given backend label.
func NewMetrics(backend string) *Metrics {
	return &Metrics{backend: backend}
}

// RecordLookup records a lookup outcome.
func (m *Metrics) RecordLookup(kind ResultKind) {
	cacheLookupsTotal.WithLabelValues(m.backend, kind.String()).Inc()
}

// RecordInvalidation records an entry invalidation.
func (m *Metrics) RecordInvalidation() {
	cacheInvalidationsTotal.WithLabelValues(m.backend).Inc()
}

// RecordError records a backend error for the given operation.
func (m *Metrics) RecordError(operation string) {
	cacheErrorsTotal.WithLabelValues(m.backend, operation).Inc()
}
