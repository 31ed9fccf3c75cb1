package retrieval

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// cache is a process-local TTL-LRU for the retrieval service's cacheable
// operations. Keys never include credentials. Only Query (keys prefixed
// "query") and GetGraphData (keys prefixed "graph") are cached, each in its
// own cache instance; RecallSources and graph recall are not cached.
type cache[V any] struct {
	lru *lru.LRU[string, V]
}

func newCache[V any](ttl time.Duration, maxSize int) *cache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &cache[V]{lru: lru.NewLRU[string, V](maxSize, nil, ttl)}
}

func (c *cache[V]) get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		cacheResult.WithLabelValues("hit").Inc()
	} else {
		cacheResult.WithLabelValues("miss").Inc()
	}
	return v, ok
}

func (c *cache[V]) put(key string, v V) {
	c.lru.Add(key, v)
}
