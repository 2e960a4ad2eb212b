package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	pool := NewPool(2, 8)
	var ran int32
	for i := 0; i < 5; i++ {
		if err := pool.Go("count", func(ctx context.Context) { atomic.AddInt32(&ran, 1) }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&ran); got != 5 {
		t.Fatalf("expected 5 tasks, got %d", got)
	}
	if err := pool.Go("late", func(ctx context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(1, 8)
	var active, peak int32
	for i := 0; i < 4; i++ {
		_ = pool.Go("slow", func(ctx context.Context) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		})
	}
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Fatalf("expected at most one task at a time, saw %d", got)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	pool := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	_ = pool.Go("blocker", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started
	if err := pool.Go("queued", func(ctx context.Context) {}); err != nil {
		t.Fatalf("expected queued task to fit, got %v", err)
	}

	// the dispatcher may be holding "queued" while waiting for the semaphore,
	// so keep submitting until the buffer is observed full
	var rejected bool
	for i := 0; i < 3; i++ {
		if err := pool.Go("overflow", func(ctx context.Context) {}); errors.Is(err, ErrQueueFull) {
			rejected = true
			break
		}
	}
	close(release)
	if !rejected {
		t.Fatal("expected ErrQueueFull once the buffer is full")
	}
	_ = pool.Shutdown(context.Background())
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool(1, 2)
	var ran int32
	_ = pool.Go("boom", func(ctx context.Context) { panic("boom") })
	_ = pool.Go("after", func(ctx context.Context) { atomic.AddInt32(&ran, 1) })
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("pool stopped running tasks after a panic")
	}
}

func TestShutdownTimeoutCancelsTasks(t *testing.T) {
	pool := NewPool(1, 1)
	cancelled := make(chan struct{})
	started := make(chan struct{})
	_ = pool.Go("stuck", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled")
	}
}

func TestRecorderDefersExecution(t *testing.T) {
	var rec Recorder
	var ran int32
	_ = rec.Go("a", func(ctx context.Context) {
		atomic.AddInt32(&ran, 1)
		_ = rec.Go("b", func(ctx context.Context) { atomic.AddInt32(&ran, 1) })
	})
	if atomic.LoadInt32(&ran) != 0 || rec.Pending() != 1 {
		t.Fatal("recorder must not run tasks on Go")
	}
	if n := rec.RunAll(context.Background()); n != 2 {
		t.Fatalf("expected 2 tasks to run, got %d", n)
	}
	if names := rec.Names(); len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected names %v", names)
	}
}
