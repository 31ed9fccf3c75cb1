package attachment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the attachment parse pipeline, in the same
// promauto style as internal/worker/metrics.go and
// internal/shardqueue/metrics.go.
var (
	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mindatlas",
			Subsystem: "attachment_parse",
			Name:      "claim_batch_size",
			Help:      "Number of rows claimed per poll.",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		},
	)

	rowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mindatlas",
			Subsystem: "attachment_parse",
			Name:      "rows_processed_total",
			Help:      "Attachment parse outbox rows processed, by outcome.",
		},
		[]string{"outcome"},
	)
)
