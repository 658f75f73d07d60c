package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation metrics
	ReconcileCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitpulse_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"status"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gitpulse_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitpulse_events_created_total",
			Help: "Total number of events created, by event type",
		},
		[]string{"event_type"},
	)

	// Fan-out metrics
	FanoutErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitpulse_fanout_errors_total",
			Help: "Total number of failed notification deliveries, by sink",
		},
		[]string{"sink"},
	)

	// WebSocket metrics
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitpulse_ws_clients",
			Help: "Number of currently connected WebSocket clients",
		},
	)
)
