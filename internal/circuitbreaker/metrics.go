package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tokengate_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	breakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_circuit_breaker_state_changes_total",
			Help: "Total number of circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)

	breakerRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokengate_circuit_breaker_rejected_total",
			Help: "Total number of requests rejected by an open circuit",
		},
		[]string{"name"},
	)
)

func recordStateChange(name string, from, to State) {
	breakerState.WithLabelValues(name).Set(float64(to))
	breakerStateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
}

func recordRejection(name string) {
	breakerRejectedTotal.WithLabelValues(name).Inc()
}
