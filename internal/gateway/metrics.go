package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for authentication decisions.
var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_auth_decisions_total",
			Help: "Total number of authentication decisions by outcome",
		},
		[]string{"outcome"},
	)

	decisionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tokengate_auth_decision_duration_seconds",
			Help:    "Time spent producing an authentication decision",
			Buckets: prometheus.DefBuckets,
		},
	)

	resolvesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_auth_resolves_total",
			Help: "Total number of credential resolutions by source",
		},
		[]string{"source"},
	)
)

// Metrics records gateway metrics.
type Metrics struct{}

// NewMetrics creates gateway metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordDecision records a terminal decision and its latency.
func (m *Metrics) RecordDecision(decision Decision, duration time.Duration) {
	outcome := "authenticated"
	if !decision.Authenticated {
		outcome = string(decision.Reason)
	}
	decisionsTotal.WithLabelValues(outcome).Inc()
	decisionDuration.Observe(duration.Seconds())
}

// RecordResolve records where a credential resolution landed.
func (m *Metrics) RecordResolve(source string) {
	resolvesTotal.WithLabelValues(source).Inc()
}
