package engine

import "github.com/prometheus/client_golang/prometheus"

// Touch modes for touchesTotal.
const (
	modeDeferred   = "deferred"
	modeImmediate  = "immediate"
	modeSuppressed = "suppressed"
)

var (
	touchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "touchdelay_touches_total",
			Help: "Touch requests by how they were handled.",
		},
		[]string{"mode"},
	)

	touchesDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "touchdelay_touches_deduplicated_total",
			Help: "Delayed touches absorbed because the record was already pending or applied.",
		},
	)

	bulkUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "touchdelay_bulk_updates_total",
			Help: "Bulk updates issued to the record store.",
		},
	)

	flushPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "touchdelay_flush_passes_total",
			Help: "Flush passes run.",
		},
	)

	flushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "touchdelay_flush_errors_total",
			Help: "Flushes that ended in an error.",
		},
	)

	rowsPerBulkUpdate = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "touchdelay_rows_per_bulk_update",
			Help:    "Records addressed by one bulk update.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	flushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "touchdelay_flush_duration_seconds",
			Help:    "Time spent flushing an outermost delay scope.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		touchesTotal,
		touchesDeduplicated,
		bulkUpdates,
		flushPasses,
		flushErrors,
		rowsPerBulkUpdate,
		flushDuration,
	)
}
