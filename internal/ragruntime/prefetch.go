package ragruntime

import (
	"context"
	"sync"
	"time"
)

// PrefetchFunc is a best-effort KB call the assistant agent loop issues
// before the SSE stream starts.
type PrefetchFunc func(ctx context.Context) (string, error)

// Prefetch wraps best-effort KB calls on their own dedicated goroutine so a
// wedged call can never stall the main RAG runtime or an SSE response. On
// timeout, the runtime is rotated (a fresh goroutine replaces it); the old
// goroutine may still be blocked on the stuck call and is simply abandoned.
type Prefetch struct {
	mu      sync.Mutex
	timeout time.Duration
	gen     int
	inflght map[int]chan struct{}
}

func NewPrefetch(timeout time.Duration) *Prefetch {
	return &Prefetch{timeout: timeout, inflght: make(map[int]chan struct{})}
}

// Call runs fn on a fresh goroutine bound to the current generation and
// waits up to the configured timeout. On timeout it rotates: the next Call
// gets a new generation and the timed-out goroutine's eventual result (if
// any) is discarded.
func (p *Prefetch) Call(ctx context.Context, fn PrefetchFunc) (string, error) {
	p.mu.Lock()
	gen := p.gen
	done := make(chan struct{})
	p.inflght[gen] = done
	p.mu.Unlock()

	type res struct {
		text string
		err  error
	}
	out := make(chan res, 1)
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	go func() {
		defer close(done)
		text, err := fn(jobCtx)
		out <- res{text, err}
	}()

	select {
	case r := <-out:
		return r.text, r.err
	case <-jobCtx.Done():
		p.rotate(gen)
		return "", ErrTimeout
	}
}

// rotate abandons the current generation's goroutine (it may still be
// running) and starts a new one for subsequent calls.
func (p *Prefetch) rotate(staleGen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if staleGen == p.gen {
		delete(p.inflght, staleGen)
		p.gen++
	}
}
