package jobs

import (
	"context"
	"time"

	"cageside/internal/domain"
	"cageside/internal/pkg/worker"

	"github.com/rs/zerolog/log"
)

type Executor interface {
	Execute(ctx context.Context, req Request) error
}

type Runner interface {
	Submit(ctx context.Context, task worker.Task) error
}

// PoolBackend runs triggers on the in-process jobs pool and drives the
// nightly refresh from a ticker.
type PoolBackend struct {
	runner Runner
	exec   Executor
}

func NewPoolBackend(runner Runner, exec Executor) *PoolBackend {
	return &PoolBackend{runner: runner, exec: exec}
}

func (b *PoolBackend) Dispatch(ctx context.Context, req Request) error {
	detached := context.WithoutCancel(ctx)
	return b.runner.Submit(detached, func(ctx context.Context) {
		if err := b.exec.Execute(ctx, req); err != nil {
			log.Error().Err(err).Str("trigger", string(req.Trigger)).Str("bout_id", req.BoutID).Msg("aggregation_trigger_failed")
		}
	})
}

// RunPeriodic dispatches a nightly request every interval until ctx ends.
func (b *PoolBackend) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = NightlyInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Dispatch(ctx, Request{Trigger: domain.TriggerNightly}); err != nil {
				log.Warn().Err(err).Msg("nightly_dispatch_failed")
			}
		}
	}
}
