package pool_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gitmirror/gitmirror/internal/pool"
)

func TestJobRunsAndReschedules(t *testing.T) {
	p := pool.New(1)

	var runs atomic.Int32
	done := make(chan struct{})

	p.Add("counter", func(context.Context) time.Time {
		if runs.Add(1) == 3 {
			close(done)
			return time.Time{} // remove from pool
		}
		return time.Now().Add(time.Millisecond)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run three times in time")
	}

	// Removal holds: give the pool a moment, count stays at 3.
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 3 {
		t.Fatalf("expected 3 runs after removal, got %d", got)
	}
}

func TestAddWakesWaitingWorker(t *testing.T) {
	p := pool.New(1)

	// Park the worker on a deadline far in the future.
	p.Add("parker", func(context.Context) time.Time {
		return time.Now().Add(time.Hour)
	})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	p.Add("prompt", func(context.Context) time.Time {
		close(done)
		return time.Time{}
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("new job did not wake the waiting worker")
	}
}
