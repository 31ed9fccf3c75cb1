package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// semaphoreWait tracks how long callers block on the bounded-concurrency
// semaphore, reusing the shardqueue package's metric-naming
// convention (internal/shardqueue/metrics.go): Namespace/Subsystem plus a
// single histogram per resource.
var semaphoreWait = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "mindatlas",
		Subsystem: "retrieval",
		Name:      "semaphore_wait_seconds",
		Help:      "Time callers spend waiting to acquire the retrieval concurrency semaphore.",
		Buckets:   prometheus.DefBuckets,
	},
)

// cacheResult tracks TTL-LRU cache hits/misses for Query and
// GetGraphData.
var cacheResult = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "mindatlas",
		Subsystem: "retrieval",
		Name:      "cache_result_total",
		Help:      "Retrieval cache lookups by outcome.",
	},
	[]string{"result"},
)
