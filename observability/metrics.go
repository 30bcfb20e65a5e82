package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// HubMetrics tracks ledger activity across every protocol engine.
type HubMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	events     *prometheus.CounterVec
}

var (
	hubMetricsOnce sync.Once
	hubRegistry    *HubMetrics
)

// Metrics returns the lazily-initialised protocol metrics registry.
func Metrics() *HubMetrics {
	hubMetricsOnce.Do(func() {
		hubRegistry = &HubMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakehub",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by module and operation.",
			}, []string{"module", "operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakehub",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Total ledger operation failures segmented by module and operation.",
			}, []string{"module", "operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakehub",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Total ledger events emitted segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			hubRegistry.operations,
			hubRegistry.failures,
			hubRegistry.events,
		)
	})
	return hubRegistry
}

// ObserveOperation records the outcome of a ledger operation.
func (m *HubMetrics) ObserveOperation(module, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(module, operation).Inc()
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
}

// ObserveEvent records an emitted ledger event.
func (m *HubMetrics) ObserveEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}
