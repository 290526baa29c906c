package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the service's Prometheus collectors behind its own
// registry, keeping the /metrics output free of default process noise.
type MetricsRegistry struct {
	registry        *prometheus.Registry
	operationsTotal *prometheus.CounterVec
}

// NewMetricsRegistry creates the registry with all collectors registered.
func NewMetricsRegistry() *MetricsRegistry {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_transfer_operations_total",
		Help: "Total lifecycle operations on pending transfers",
	}, []string{"operation", "outcome"})

	r := prometheus.NewRegistry()
	r.MustRegister(operations)

	return &MetricsRegistry{
		registry:        r,
		operationsTotal: operations,
	}
}

func (m *MetricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsRegistry) incOperation(operation, outcome string) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// addOperations records a batch of n lifecycle operations at once, used by
// the expiry sweep and reminder endpoints.
func (m *MetricsRegistry) addOperations(operation, outcome string, n int) {
	m.operationsTotal.WithLabelValues(operation, outcome).Add(float64(n))
}
