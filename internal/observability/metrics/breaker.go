package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics exports circuit breaker state per collaborator operation.
type BreakerMetrics struct {
	service     string
	open        *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func NewBreakerMetrics(service string, registry *prometheus.Registry) *BreakerMetrics {
	open := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "circuit_open",
			Help:      "1 while the operation's circuit breaker is open or half-open.",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collaborator",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		},
		[]string{"service", "operation", "to"},
	)
	registry.MustRegister(open, transitions)
	return &BreakerMetrics{service: service, open: open, transitions: transitions}
}

// OnStateChange matches resilience.StateListener.
func (m *BreakerMetrics) OnStateChange(operation, _, to string) {
	m.transitions.WithLabelValues(m.service, operation, to).Inc()
	value := 1.0
	if to == "closed" {
		value = 0
	}
	m.open.WithLabelValues(m.service, operation).Set(value)
}
