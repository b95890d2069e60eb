package resultpush

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/resultpush/platforms"

	"github.com/rs/zerolog/log"
)

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

type Manager struct {
	cfg      Config
	router   Router
	adapters map[string]platforms.Adapter

	dispatchCh chan pushJob
	retryQ     *retryQueue
	done       chan struct{}

	mu           sync.Mutex
	started      bool
	breakerByKey map[string]breakerState
}

func NewManager(cfg Config) *Manager {
	client := platforms.NewHTTPClient(cfg.RequestTimeout)
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}
	m := &Manager{
		cfg:    cfg,
		router: Router{},
		adapters: map[string]platforms.Adapter{
			"discord": platforms.NewDiscordAdapter(client),
			"feishu":  platforms.NewFeishuAdapter(client),
			"webhook": platforms.NewWebhookAdapter(client),
		},
		dispatchCh:   make(chan pushJob, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

// Start subscribes to computed results and runs the delivery workers until
// ctx ends. It is a no-op when pushing is disabled.
func (m *Manager) Start(ctx context.Context, bus *eventbus.Bus) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	sub := bus.Subscribe(eventbus.KindIn(eventbus.KindRoundComputed, eventbus.KindFightFinalized))
	for i := 0; i < m.cfg.Workers; i++ {
		go m.worker(ctx)
	}
	if m.cfg.ConfigPath != "" {
		go m.watchConfigLoop(ctx)
	}
	go m.consume(ctx, sub)
	go func() {
		<-ctx.Done()
		close(m.done)
		sub.Close()
	}()
	log.Info().Int("targets", len(m.currentTargets())).Int("workers", m.cfg.Workers).Msg("result_push_started")
	return nil
}

func (m *Manager) consume(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			m.handleNotification(n)
		}
	}
}

func (m *Manager) handleNotification(n eventbus.Notification) {
	ev, ok := normalize(n)
	if !ok {
		return
	}
	formatted, ok := FormatMessage(ev)
	if !ok {
		return
	}
	for _, target := range m.router.MatchTargets(m.currentTargets(), ev) {
		job := pushJob{Target: target, Event: ev, Formatted: formatted, Terminal: ev.Fight != nil}
		if !m.enqueue(job) {
			metricPushDroppedTotal.Add(1)
		}
	}
}

func normalize(n eventbus.Notification) (ResultEvent, bool) {
	ev := ResultEvent{EventID: n.EventID(), EventType: string(n.Kind), BoutID: n.BoutID, At: n.At}
	switch data := n.Data.(type) {
	case domain.RoundResult:
		ev.Round = &data
	case domain.FightResult:
		ev.Fight = &data
	default:
		return ResultEvent{}, false
	}
	return ev, true
}

func (m *Manager) enqueue(job pushJob) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- job:
		metricPushQueuedTotal.Add(1)
		metricPushQueueLen.Set(int64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}

func (m *Manager) currentTargets() []PushTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushTarget, len(m.cfg.Targets))
	copy(out, m.cfg.Targets)
	return out
}

// watchConfigLoop re-reads the targets file and swaps the target list when
// its content changes.
func (m *Manager) watchConfigLoop(ctx context.Context) {
	lastRaw := ""
	if raw, err := os.ReadFile(m.cfg.ConfigPath); err == nil {
		lastRaw = strings.TrimSpace(string(raw))
	}
	ticker := time.NewTicker(m.cfg.ConfigReload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			raw, err := os.ReadFile(m.cfg.ConfigPath)
			if err != nil {
				metricPushConfigReloadError.Add(1)
				continue
			}
			next := strings.TrimSpace(string(raw))
			if next == lastRaw {
				continue
			}
			targets, err := parseTargetsJSON(next)
			if err != nil {
				metricPushConfigReloadError.Add(1)
				log.Warn().Err(err).Str("path", m.cfg.ConfigPath).Msg("result_push_config_reload_failed")
				continue
			}
			m.mu.Lock()
			m.cfg.Targets = targets
			m.mu.Unlock()
			lastRaw = next
			metricPushConfigReloadTotal.Add(1)
			log.Info().Int("targets", len(targets)).Msg("result_push_config_reloaded")
		}
	}
}
