// Package metrics holds the process-wide prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balcao_conversation_decisions_total",
		Help: "Conversation decisions by mode (deterministic, delegate).",
	}, []string{"mode"})

	dispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balcao_outbox_dispatch_total",
		Help: "Outbox items processed by the dispatch runner, by outcome.",
	}, []string{"outcome"})

	breakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "balcao_dispatch_breaker_trips_total",
		Help: "Times the dispatch circuit breaker paused a batch.",
	})
)

func RecordDecision(mode string) {
	decisions.WithLabelValues(mode).Inc()
}

// RecordDispatch outcome is one of sent, failed, skipped, simulated.
func RecordDispatch(outcome string) {
	dispatchOutcomes.WithLabelValues(outcome).Inc()
}

func RecordBreakerTrip() {
	breakerTrips.Inc()
}
