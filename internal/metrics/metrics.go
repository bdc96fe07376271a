// Package metrics exposes Prometheus collectors for the landing pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Batch status label values.
const (
	StatusOK        = "ok"
	StatusDecode    = "decode_error"
	StatusMalformed = "malformed"
	StatusEmpty     = "empty"
	StatusCanceled  = "canceled"
)

// Record status label values.
const (
	RecordSuccess = "success"
	RecordFailure = "failure"
)

var (
	// Batch metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailhawk_batches_total",
			Help: "Total number of batches processed",
		},
		[]string{"status"},
	)

	BatchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailhawk_batch_bytes_total",
			Help: "Total bytes of raw batch payload received",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trailhawk_batch_duration_seconds",
			Help:    "Duration of a full decode, parse and persist run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Parse metrics
	EventsParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailhawk_events_parsed_total",
			Help: "Total number of events that parsed successfully",
		},
	)

	// Storage metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailhawk_records_total",
			Help: "Total number of record writes by backend and outcome",
		},
		[]string{"store", "status"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trailhawk_store_duration_seconds",
			Help:    "Duration of a single record write in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	// DLQ metrics
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailhawk_dead_letters_total",
			Help: "Total number of failed records written to the dead-letter queue",
		},
		[]string{"backend", "status"},
	)
)
