package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	appscoring "cageside/internal/app/scoring"
	"cageside/internal/config"
	"cageside/internal/eventbus"
	"cageside/internal/ingest"
	"cageside/internal/jobs"
	"cageside/internal/logging"
	"cageside/internal/mcpserver"
	"cageside/internal/pkg/worker"
	"cageside/internal/resultpush"
	"cageside/internal/stats"
	"cageside/internal/store"
	httptransport "cageside/internal/transport/http"
	"cageside/internal/ws"

	"github.com/rs/zerolog/log"
)

const eventReplayMax = 1000

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	closeLog, err := logging.Init(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg.Server); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.ServerConfig) error {
	st, err := store.New(cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return err
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{NotifyPoolSize: cfg.NotifyWorkers, JobsPoolSize: cfg.JobsWorkers})
	if err != nil {
		return err
	}
	defer pools.Shutdown()
	expvar.Publish("worker_pools", expvar.Func(func() any { return pools.Metrics() }))

	bus := eventbus.New(eventReplayMax)
	defer bus.Close()

	scoringSvc := appscoring.NewService(st, bus)
	pipeline := stats.NewPipeline(st)
	scheduler := jobs.NewScheduler(st, pipeline, bus)
	scoringSvc.SetStatsTrigger(scheduler)

	stopJobs, err := startJobsBackend(ctx, cfg, st, pools, scheduler)
	if err != nil {
		return err
	}
	defer stopJobs()

	hub := ws.NewServer(scoringSvc, ws.Config{
		PingInterval: cfg.WSPingInterval(),
		PongTimeout:  cfg.WSPongTimeout(),
	})
	defer hub.Close()
	go hub.Run(ctx, bus)

	gateway := ingest.NewGateway(st, bus, notifyRunner{pools: pools}, ingest.Config{
		AutoCreateBouts: cfg.AutoCreateBouts,
		MaxRounds:       cfg.MaxRounds,
	})
	gateway.SetClientCounter(hub)

	pushCfg, err := resultpush.ConfigFromServer(cfg)
	if err != nil {
		return err
	}
	if err := resultpush.NewManager(pushCfg).Start(ctx, bus); err != nil {
		return err
	}

	mcp := mcpserver.New(mcpserver.Deps{Scoring: scoringSvc, Stats: pipeline, Jobs: scheduler})

	r := httptransport.NewRouter(httptransport.Deps{
		Store:       st,
		Bouts:       st,
		Gateway:     gateway,
		Scoring:     scoringSvc,
		Stats:       pipeline,
		Jobs:        scheduler,
		Bus:         bus,
		Hub:         hub,
		MCP:         mcp.Handler(),
		CORSOrigins: cfg.CORSOrigins,
	})
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("jobs_backend", cfg.JobsBackend).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// startJobsBackend installs the dispatcher for asynchronous stat triggers and
// returns its stop func.
func startJobsBackend(ctx context.Context, cfg config.ServerConfig, st *store.Store, pools *worker.Pools, scheduler *jobs.Scheduler) (func(), error) {
	switch cfg.JobsBackend {
	case "river":
		if err := jobs.MigrateRiver(ctx, st.Pool); err != nil {
			return nil, err
		}
		backend, err := jobs.NewRiverBackend(st.Pool, scheduler, cfg.JobsWorkers)
		if err != nil {
			return nil, err
		}
		if err := backend.Start(ctx); err != nil {
			return nil, err
		}
		scheduler.SetDispatcher(backend)
		return func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := backend.Stop(stopCtx); err != nil {
				log.Warn().Err(err).Msg("river_stop_failed")
			}
		}, nil
	case "pool", "":
		backend := jobs.NewPoolBackend(jobsRunner{pools: pools}, scheduler)
		scheduler.SetDispatcher(backend)
		go backend.RunPeriodic(ctx, jobs.NightlyInterval)
		return func() {}, nil
	default:
		return nil, errors.New("JOBS_BACKEND must be pool or river")
	}
}

// notifyRunner and jobsRunner submit under the service context so work
// queued by a request is not cancelled when the response is written.
type notifyRunner struct{ pools *worker.Pools }

func (r notifyRunner) Submit(_ context.Context, task worker.Task) error {
	return r.pools.SubmitDetached(r.pools.Notify, task)
}

type jobsRunner struct{ pools *worker.Pools }

func (r jobsRunner) Submit(_ context.Context, task worker.Task) error {
	return r.pools.SubmitDetached(r.pools.Jobs, task)
}
