// Package metrics exposes coordinator instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	TabEvents       *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	GatewayFailures *prometheus.CounterVec
	ModeChanges     prometheus.Counter
	BusConnections  prometheus.Gauge
}

// New registers and returns the coordinator metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TabEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_tab_events_total",
			Help: "Tab lifecycle events received from the browser bridge.",
		}, []string{"kind"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_classifications_total",
			Help: "Classification outcomes by result.",
		}, []string{"outcome"}),
		GatewayFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coordinator_gateway_failures_total",
			Help: "Remote gateway failures by operation.",
		}, []string{"op"}),
		ModeChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "coordinator_mode_changes_total",
			Help: "Accepted SET_MODE transitions.",
		}),
		BusConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coordinator_bus_connections",
			Help: "Currently connected bus clients.",
		}),
	}
}

// NewNop returns metrics backed by a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
