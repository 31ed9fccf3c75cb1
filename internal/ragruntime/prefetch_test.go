package ragruntime

import (
	"context"
	"testing"
	"time"
)

// A wedged prefetch call must time out, and the next call must get a fresh
// goroutine and behave normally even while the old one is still blocked.
func TestPrefetch_TimeoutThenRecovery(t *testing.T) {
	p := NewPrefetch(10 * time.Millisecond)

	release := make(chan struct{})
	_, err := p.Call(context.Background(), func(ctx context.Context) (string, error) {
		<-release
		return "late", nil
	})
	if !IsTimeout(err) {
		t.Fatalf("Call() error = %v, want timeout", err)
	}

	out, err := p.Call(context.Background(), func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call() after rotation: %v", err)
	}
	if out != "ok" {
		t.Fatalf("Call() = %q, want %q", out, "ok")
	}
	close(release)
}

func TestPrefetch_FastCallReturnsResult(t *testing.T) {
	p := NewPrefetch(time.Second)
	out, err := p.Call(context.Background(), func(ctx context.Context) (string, error) {
		return "kb context", nil
	})
	if err != nil {
		t.Fatalf("Call(): %v", err)
	}
	if out != "kb context" {
		t.Fatalf("Call() = %q", out)
	}
}

func TestRuntime_SubmitRunsJobWithEngine(t *testing.T) {
	rt := New[string]("engine", time.Second, 4)
	rt.Start()
	defer rt.Stop()

	var got string
	err := rt.Submit(context.Background(), func(ctx context.Context, engine string) error {
		got = engine
		return nil
	})
	if err != nil {
		t.Fatalf("Submit(): %v", err)
	}
	if got != "engine" {
		t.Fatalf("job saw engine %q", got)
	}
}

func TestRuntime_SubmitTimesOutOnWedgedJob(t *testing.T) {
	rt := New[string]("engine", 20*time.Millisecond, 1)
	rt.Start()
	defer rt.Stop()

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- rt.Submit(context.Background(), func(ctx context.Context, engine string) error {
			<-release
			return nil
		})
	}()

	select {
	case err := <-done:
		if !IsTimeout(err) {
			t.Fatalf("Submit() error = %v, want timeout", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit() never returned")
	}
	close(release)
}
