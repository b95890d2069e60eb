package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPools(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	if pools.Notify == nil || pools.Jobs == nil {
		t.Fatal("expected both pools")
	}
	m := pools.Metrics()
	if _, ok := m["notify"]; !ok {
		t.Fatalf("missing notify metrics: %v", m)
	}
}

func TestPoolSubmitRunsTask(t *testing.T) {
	pools, err := NewPools(context.Background(), PoolConfig{NotifyPoolSize: 2, JobsPoolSize: 1})
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	var executed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := pools.Jobs.Submit(context.Background(), func(ctx context.Context) {
			defer wg.Done()
			executed.Add(1)
		}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	wg.Wait()
	if executed.Load() != 10 {
		t.Fatalf("expected 10 tasks, got %d", executed.Load())
	}
}

func TestPoolSubmitCancelledContext(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	defer pools.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pools.Jobs.Submit(ctx, func(ctx context.Context) {
		t.Error("task must not run")
	}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSubmitDetachedSkipsAfterShutdown(t *testing.T) {
	pools, err := NewPools(context.Background(), DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	done := make(chan struct{})
	if err := pools.SubmitDetached(pools.Jobs, func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("SubmitDetached() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("detached task did not run")
	}
	pools.Shutdown()
	if err := pools.SubmitDetached(pools.Jobs, func(ctx context.Context) {}); err == nil {
		t.Fatal("expected error after shutdown")
	}
}

func TestNonblockingPoolReportsOverload(t *testing.T) {
	pool, err := NewPool("overload", 1, time.Second, Nonblocking())
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	defer pool.Release(time.Second)

	started := make(chan struct{})
	hold := make(chan struct{})
	if err := pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-hold
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-started

	begin := time.Now()
	err = pool.Submit(context.Background(), func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolOverload) {
		t.Fatalf("expected ErrPoolOverload, got %v", err)
	}
	if waited := time.Since(begin); waited > 500*time.Millisecond {
		t.Fatalf("Submit blocked for %v", waited)
	}
	close(hold)
}
