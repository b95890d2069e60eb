// Package worker wraps ants pools with context-aware submission.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPoolClosed is returned when submitting to a released pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolOverload is returned by a non-blocking pool with no idle worker.
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

type Task func(ctx context.Context)

type Pool struct {
	pool *ants.Pool
	name string
}

// Pools holds the server's goroutine pools: Notify writes ingest acks,
// Jobs runs asynchronous stat aggregation.
type Pools struct {
	Notify *Pool
	Jobs   *Pool

	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

type PoolConfig struct {
	NotifyPoolSize int
	JobsPoolSize   int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{NotifyPoolSize: 8, JobsPoolSize: 4}
}

type poolSettings struct {
	nonblocking bool
}

type PoolOption func(*poolSettings)

// Nonblocking makes Submit fail with ErrPoolOverload instead of waiting for
// a free worker.
func Nonblocking() PoolOption {
	return func(s *poolSettings) { s.nonblocking = true }
}

func NewPool(name string, size int, expiry time.Duration, opts ...PoolOption) (*Pool, error) {
	if size <= 0 {
		size = 1
	}
	var settings poolSettings
	for _, opt := range opts {
		opt(&settings)
	}
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(v any) {
			log.Error().Str("pool", name).Interface("panic", v).Msg("worker_panic_recovered")
		}),
		ants.WithNonblocking(settings.nonblocking),
		ants.WithExpiryDuration(expiry),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, name: name}, nil
}

func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)
	// Notify runs on the ingest path and must never make a request wait.
	notify, err := NewPool("notify", cfg.NotifyPoolSize, 10*time.Second, Nonblocking())
	if err != nil {
		serviceCancel()
		return nil, err
	}
	jobs, err := NewPool("jobs", cfg.JobsPoolSize, 30*time.Second)
	if err != nil {
		notify.pool.Release()
		serviceCancel()
		return nil, err
	}
	return &Pools{Notify: notify, Jobs: jobs, serviceCtx: serviceCtx, serviceCancel: serviceCancel}, nil
}

// Submit runs task with the caller's ctx. A ctx cancelled before the task
// starts skips it.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	err := p.pool.Submit(func() {
		select {
		case <-ctx.Done():
			log.Debug().Str("pool", p.name).Err(ctx.Err()).Msg("task_skipped_context_cancelled")
			return
		default:
		}
		task(ctx)
	})
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverload
	}
	return err
}

// Release waits up to timeout for running tasks.
func (p *Pool) Release(timeout time.Duration) error {
	return p.pool.ReleaseTimeout(timeout)
}

func (p *Pool) Running() int { return p.pool.Running() }

// SubmitDetached runs task under the service lifecycle context instead of a
// request context, so it outlives the request but not shutdown.
func (p *Pools) SubmitDetached(pool *Pool, task Task) error {
	return pool.Submit(p.serviceCtx, task)
}

// Shutdown cancels detached tasks and waits for running ones.
func (p *Pools) Shutdown() {
	p.serviceCancel()
	const shutdownTimeout = 30 * time.Second
	if err := p.Notify.Release(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("notify_pool_shutdown_timeout")
	}
	if err := p.Jobs.Release(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("jobs_pool_shutdown_timeout")
	}
}

func (p *Pools) Metrics() map[string]any {
	return map[string]any{
		"notify": map[string]int{"running": p.Notify.pool.Running(), "free": p.Notify.pool.Free(), "cap": p.Notify.pool.Cap()},
		"jobs":   map[string]int{"running": p.Jobs.pool.Running(), "free": p.Jobs.pool.Free(), "cap": p.Jobs.pool.Cap()},
	}
}
