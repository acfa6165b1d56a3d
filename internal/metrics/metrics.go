// Package metrics holds the prometheus collectors of the signaling layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "proctor"

var (
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inbound_events_total",
		Help:      "Client events accepted by the router, by type.",
	}, []string{"type"})

	RejectedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_events_total",
		Help:      "Client events rejected before dispatch, by reason.",
	}, []string{"reason"})

	DroppedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_events_total",
		Help:      "Outbound events discarded on full connection queues, by type.",
	}, []string{"type"})

	Backpressure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backpressure_total",
		Help:      "Latency-sensitive sends refused by a full queue, by policy action.",
	}, []string{"action"})

	ProctoringPublishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proctoring_publishes_total",
		Help:      "Proctoring analysis publishes, by result.",
	}, []string{"result"})

	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_rooms",
		Help:      "Rooms with at least one member.",
	})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Open signaling connections.",
	})
)

// NewRegistry returns a registry holding every collector of this package
// plus the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		InboundEvents,
		RejectedEvents,
		DroppedEvents,
		Backpressure,
		ProctoringPublishes,
		ActiveRooms,
		ActiveConnections,
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
