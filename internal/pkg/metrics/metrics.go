package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every sovd collector and is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// VehicleConnectivityStatus is the state of the pooled vehicle channel.
	// 1 = Ready, 0 = Not Ready (Idle, Connecting, TransientFailure)
	VehicleConnectivityStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sovd_vehicle_connectivity_status",
			Help: "The connectivity status of the vehicle gateway channel (1=Ready, 0=NotReady).",
		},
	)

	// CommandOutcomesTotal counts finished commands by terminal outcome.
	CommandOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sovd_command_outcomes_total",
			Help: "Total number of finished commands by outcome.",
		},
		[]string{"status"}, // completed, failed, timeout
	)

	// CommandDuration observes the time from submission to the terminal status.
	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sovd_command_duration_seconds",
			Help:    "Duration from command submission to completion.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"status"},
	)

	// CommandRetriesTotal counts attempts repeated after a transient failure.
	CommandRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sovd_command_retries_total",
			Help: "Total number of retried vehicle execution attempts.",
		},
	)

	// WebSocketConnections is the number of live response relays.
	WebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sovd_websocket_connections",
			Help: "Number of live WebSocket response connections.",
		},
	)

	// BusEventsDroppedTotal counts events not delivered to a lagging subscriber.
	BusEventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sovd_bus_events_dropped_total",
			Help: "Total number of events dropped because a subscriber buffer was full.",
		},
	)
)

// Outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		VehicleConnectivityStatus,
		CommandOutcomesTotal,
		CommandDuration,
		CommandRetriesTotal,
		WebSocketConnections,
		BusEventsDroppedTotal,
	)
}
