package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker telemetry is package-global because breakers are created per
// webhook endpoint at runtime, long after collector registration.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "khata",
			Name:      "breaker_state",
			Help:      "Breaker position per target: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "khata",
			Name:      "breaker_transition_total",
			Help:      "Breaker state transitions by target and edge.",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "khata",
			Name:      "breaker_open_total",
			Help:      "Times a breaker tripped open per target.",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
