package ragruntime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the single RAG runtime goroutine's job queue, following
// internal/shardqueue/metrics.go's naming convention (Namespace/Subsystem
// plus one gauge for depth, one histogram for run duration).
var (
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mindatlas",
			Subsystem: "ragruntime",
			Name:      "queue_depth",
			Help:      "Current number of jobs queued for the RAG runtime goroutine.",
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mindatlas",
			Subsystem: "ragruntime",
			Name:      "run_duration_seconds",
			Help:      "RAG/KG engine call latency as observed by the runtime goroutine.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	timeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mindatlas",
			Subsystem: "ragruntime",
			Name:      "submit_timeouts_total",
			Help:      "Submit calls that gave up waiting on the runtime goroutine.",
		},
	)
)
