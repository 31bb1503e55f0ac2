package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommitPushFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmirror_commit_push_failed_total",
			Help: "Total number of failed commit and push runs",
		},
		[]string{"repo"},
	)

	CommitPushCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitmirror_commit_push_count_total",
			Help: "Total number of commit and push runs",
		},
	)

	CommitsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitmirror_commits_created_total",
			Help: "Number of automatic commits created",
		},
		[]string{"repo"},
	)

	PushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gitmirror_push_duration_seconds",
			Help:    "Push duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"repo"},
	)
)
