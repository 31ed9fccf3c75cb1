package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the leased worker pool, labeled by pipeline
// (entry/attachment_index/attachment_parse) and outcome, in the same
// promauto package-var-per-metric style as internal/shardqueue/metrics.go.
var (
	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mindatlas",
			Subsystem: "worker",
			Name:      "claim_batch_size",
			Help:      "Number of rows claimed per poll.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		},
		[]string{"pipeline"},
	)

	rowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindatlas",
			Subsystem: "worker",
			Name:      "rows_processed_total",
			Help:      "Outbox rows processed, by pipeline and outcome.",
		},
		[]string{"pipeline", "outcome"},
	)
)
