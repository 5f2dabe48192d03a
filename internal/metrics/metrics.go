// Package metrics exposes Prometheus collectors for the write-back queue.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "writeback_enqueued_total",
			Help: "Total number of operations staged in the queue.",
		},
	)

	ReplaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writeback_replays_total",
			Help: "Total number of replay attempts by outcome.",
		},
		[]string{"outcome"}, // success, failure
	)

	DroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "writeback_dropped_total",
			Help: "Total number of operations dropped after exhausting retries.",
		},
	)

	SyncPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "writeback_sync_passes_total",
			Help: "Total number of sync passes by result.",
		},
		[]string{"result"}, // success, partial, store_error
	)

	StoreErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "writeback_store_errors_total",
			Help: "Total number of durable store failures.",
		},
	)

	SyncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "writeback_sync_pass_duration_seconds",
			Help:    "Wall time of complete sync passes.",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "writeback_queue_depth",
			Help: "Pending operations currently persisted.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EnqueuedTotal,
		ReplaysTotal,
		DroppedTotal,
		SyncPassesTotal,
		StoreErrorsTotal,
		SyncPassDuration,
		QueueDepth,
	)
}
