package jobs

import (
	"context"
	"fmt"
	"time"

	"cageside/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog/log"
)

const NightlyInterval = 24 * time.Hour

// AggregateArgs carries one asynchronous trigger through river.
type AggregateArgs struct {
	Trigger     domain.JobTrigger `json:"trigger"`
	BoutID      string            `json:"bout_id,omitempty"`
	RoundNumber int               `json:"round_number,omitempty"`
}

func (AggregateArgs) Kind() string { return "stats_aggregate" }

// InsertOpts collapses identical triggers that are still waiting or running.
func (AggregateArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

func (a AggregateArgs) request() Request {
	return Request{Trigger: a.Trigger, BoutID: a.BoutID, RoundNumber: a.RoundNumber}
}

type AggregateWorker struct {
	river.WorkerDefaults[AggregateArgs]
	exec Executor
}

func NewAggregateWorker(exec Executor) *AggregateWorker {
	return &AggregateWorker{exec: exec}
}

func (w *AggregateWorker) Work(ctx context.Context, job *river.Job[AggregateArgs]) error {
	if w == nil || w.exec == nil {
		return fmt.Errorf("aggregate worker is not initialized")
	}
	return w.exec.Execute(ctx, job.Args.request())
}

// RiverBackend persists triggers in postgres so they survive a restart.
type RiverBackend struct {
	client *river.Client[pgx.Tx]
}

// MigrateRiver creates or upgrades river's own tables.
func MigrateRiver(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		log.Info().Int("versions", len(res.Versions)).Msg("river_migration_completed")
	}
	return nil
}

func NewRiverBackend(pool *pgxpool.Pool, exec Executor, maxWorkers int) (*RiverBackend, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, NewAggregateWorker(exec))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(NightlyInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return AggregateArgs{Trigger: domain.TriggerNightly}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: false},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	log.Info().Int("max_workers", maxWorkers).Msg("river_client_initialized")
	return &RiverBackend{client: client}, nil
}

func (b *RiverBackend) Dispatch(ctx context.Context, req Request) error {
	res, err := b.client.Insert(ctx, AggregateArgs{Trigger: req.Trigger, BoutID: req.BoutID, RoundNumber: req.RoundNumber}, nil)
	if err != nil {
		return fmt.Errorf("insert %s job: %w", req.Trigger, err)
	}
	if res.UniqueSkippedAsDuplicate {
		log.Debug().Str("trigger", string(req.Trigger)).Str("bout_id", req.BoutID).Msg("aggregation_trigger_deduplicated")
	}
	return nil
}

func (b *RiverBackend) Start(ctx context.Context) error {
	if err := b.client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	log.Info().Msg("river_client_started")
	return nil
}

func (b *RiverBackend) Stop(ctx context.Context) error {
	return b.client.Stop(ctx)
}
