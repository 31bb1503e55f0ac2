package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MirrorSyncFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmirror_sync_failed_total",
			Help: "Total number of failed mirror sync runs",
		},
		[]string{"job"},
	)

	MirrorSyncCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmirror_sync_count_total",
			Help: "Total number of mirror sync runs",
		},
	)

	MirrorSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitmirror_sync_duration_seconds",
			Help:    "Mirror sync duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"job"},
	)

	LastMirrorSyncStart = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitmirror_last_sync_start_timestamp",
			Help: "Unix timestamp of when the last mirror sync started",
		},
		[]string{"job"},
	)

	LastMirrorSyncEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gitmirror_last_sync_end_timestamp",
			Help: "Unix timestamp of when the last mirror sync ended",
		},
		[]string{"job"},
	)
)
