package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cageside/internal/config"
	"cageside/internal/liveclient"
	"cageside/internal/logging"
	"cageside/internal/reconnect"
	"cageside/internal/syncmgr"

	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "device profile (YAML)")
	flag.Parse()

	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	closeLog, err := logging.Init(logCfg)
	if err != nil {
		panic(err)
	}
	defer closeLog()

	cfg, err := config.LoadDevice(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load device config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := syncmgr.OpenSQLiteQueue(ctx, cfg.QueuePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.QueuePath).Msg("open queue failed")
	}
	defer queue.Close()

	mgr := syncmgr.NewManager(
		queue,
		syncmgr.NewHTTPSubmitter(cfg.ServerURL, cfg.SubmitTimeout()),
		syncmgr.NewHTTPProbe(cfg.ServerURL, cfg.SubmitTimeout()),
		syncmgr.Config{
			MaxRetries:    cfg.MaxRetries,
			ProbeInterval: cfg.ProbeInterval(),
			Retention:     cfg.Retention(),
		},
	)
	defer mgr.Close()
	go mgr.Run(ctx)

	if cfg.Live && cfg.BoutID != "" {
		live := liveclient.New(liveclient.Config{
			URL:    hubURL(cfg.ServerURL),
			BoutID: cfg.BoutID,
			OnMessage: func(m liveclient.Message) {
				log.Info().Str("type", m.Type).RawJSON("payload", m.Raw).Msg("live_update")
			},
			OnState: func(st reconnect.Status) {
				if st.State == reconnect.StateFailed {
					log.Error().Str("last_error", st.LastError).Msg(st.Message)
					return
				}
				log.Info().Str("state", string(st.State)).Int("attempt", st.Attempt).Msg("live_connection")
			},
		})
		live.Start(ctx)
		defer live.Stop()
	}

	log.Info().Str("server", cfg.ServerURL).Str("role", cfg.DeviceRole).Str("queue", cfg.QueuePath).Msg("device ready")
	sh := &shell{mgr: mgr, defaults: cfg, out: os.Stdout}
	if err := sh.Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("input closed with error")
	}
}

// hubURL turns the gateway base URL into the broadcast socket URL.
func hubURL(serverURL string) string {
	u := strings.TrimRight(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
