package moe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture-path counters. Registered on the default registry so an embedding
// engine that already serves /metrics picks them up for free.
var (
	routesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moelog",
		Name:      "routes_recorded_total",
		Help:      "Route records successfully handed to the capture sink.",
	})

	routesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moelog",
		Name:      "routes_dropped_total",
		Help:      "Routing decisions dropped due to validation or sink failure.",
	})

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moelog",
		Name:      "write_failures_total",
		Help:      "Capture sessions latched into the failed state.",
	})

	metaWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "moelog",
		Name:      "meta_writes_total",
		Help:      "Session meta headers emitted.",
	})
)
