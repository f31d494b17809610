// Package metrics holds the Prometheus collectors shared by the API server and the outbox worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_dispatch_total",
			Help: "Notifications accepted for dispatch",
		},
		[]string{"category"},
	)

	OutboxEntriesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_outbox_entries_created_total",
			Help: "Outbox rows written by dispatch",
		},
		[]string{"channel"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_deliveries_total",
			Help: "Delivery attempts by channel and result (sent, retry, failed)",
		},
		[]string{"channel", "result"},
	)

	QuietHoursSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyhub_quiet_hours_suppressed_total",
			Help: "Channel deliveries skipped because the recipient was in quiet hours",
		},
		[]string{"channel"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifyhub_outbox_sweep_duration_seconds",
			Help:    "Duration of one retry sweep",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifyhub_websocket_connections",
			Help: "Open conversation websocket connections",
		},
	)
)

// Delivery results used as the "result" label.
const (
	ResultSent   = "sent"
	ResultRetry  = "retry"
	ResultFailed = "failed"
)
