package retrieval

import (
	"context"
	"time"
)

// semaphore bounds concurrent retrieval calls. Exhaustion surfaces as a timeout
// from the caller's perspective, so Acquire honors ctx's deadline instead
// of blocking indefinitely.
type semaphore chan struct{}

func newSemaphore(n int) semaphore {
	if n <= 0 {
		n = 1
	}
	return make(semaphore, n)
}

func (s semaphore) acquire(ctx context.Context) error {
	start := time.Now()
	defer func() { semaphoreWait.Observe(time.Since(start).Seconds()) }()

	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s semaphore) release() { <-s }
