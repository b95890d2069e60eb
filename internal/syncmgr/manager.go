package syncmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cageside/internal/domain"
	"cageside/internal/ingest"
	"cageside/internal/reconnect"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ConnState string

const (
	StateOnline  ConnState = "online"
	StateOffline ConnState = "offline"
)

type Config struct {
	MaxRetries    int
	ProbeInterval time.Duration
	Retention     time.Duration
	PruneInterval time.Duration
	BatchSize     int
	Policy        reconnect.Policy
	Clock         reconnect.Clock
	// StartOnline skips the first probe and assumes the gateway is up.
	StartOnline bool
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = time.Hour
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy = reconnect.DrainRetryPolicy
	}
	if c.Clock == nil {
		c.Clock = reconnect.RealClock()
	}
	return c
}

type Receipt struct {
	LocalID string `json:"local_id"`
	Queued  bool   `json:"queued"`
}

type DrainReport struct {
	Batch     SyncBatch
	Exhausted []*domain.SyncExhaustedError
}

type Status struct {
	State     ConnState `json:"state"`
	Pending   int       `json:"pending"`
	Failed    int       `json:"failed"`
	Syncing   bool      `json:"syncing"`
	Indicator string    `json:"indicator"`
}

// FailedItem is a quarantined event waiting for an operator.
type FailedItem struct {
	Item QueueItem
	Err  *domain.SyncExhaustedError
}

type Manager struct {
	queue  Queue
	submit Submitter
	probe  Probe
	cfg    Config
	newID  func() string

	mu           sync.Mutex
	state        ConnState
	syncing      bool
	drainAttempt int
	retryTimer   reconnect.Timer
	closed       bool
}

func NewManager(q Queue, sub Submitter, probe Probe, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	state := StateOffline
	if cfg.StartOnline {
		state = StateOnline
	}
	return &Manager{
		queue:  q,
		submit: sub,
		probe:  probe,
		cfg:    cfg,
		newID:  uuid.NewString,
		state:  state,
	}
}

func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Record assigns the idempotency token, stamps metadata.client_ts_ms and
// submits directly while online. A transient failure switches to offline and
// queues the event; validation failures are returned and never queued.
func (m *Manager) Record(ctx context.Context, req ingest.SubmitRequest) (Receipt, error) {
	if err := validate(req); err != nil {
		return Receipt{}, err
	}
	meta, err := stampClientTime(req.Metadata, m.cfg.Clock.Now())
	if err != nil {
		return Receipt{}, err
	}
	req.Metadata = meta
	req.IdempotencyKey = m.newID()
	receipt := Receipt{LocalID: req.IdempotencyKey}

	if m.State() == StateOnline {
		err = m.submit.Submit(ctx, req)
		if err == nil {
			metricRecorded.WithLabelValues("direct").Inc()
			return receipt, nil
		}
		if !domain.IsTransient(err) {
			return Receipt{}, err
		}
		log.Warn().Err(err).Str("local_id", receipt.LocalID).Msg("sync_gateway_unreachable")
		m.setState(StateOffline)
	}

	item := QueueItem{
		LocalID:     req.IdempotencyKey,
		BoutID:      req.BoutID,
		RoundNumber: req.RoundNumber,
		Payload:     req,
		QueuedAt:    m.cfg.Clock.Now().UTC(),
	}
	if err := m.queue.Enqueue(ctx, item); err != nil {
		return Receipt{}, fmt.Errorf("queue event: %w", err)
	}
	metricRecorded.WithLabelValues("queued").Inc()
	receipt.Queued = true
	return receipt, nil
}

// stampClientTime sets client_ts_ms to the recording time unless the caller
// already supplied one. Queued events keep their real spacing when drained
// late.
func stampClientTime(raw json.RawMessage, now time.Time) (json.RawMessage, error) {
	obj := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
			return nil, domain.Invalid("metadata", "must be a JSON object")
		}
	}
	if _, ok := obj["client_ts_ms"]; ok {
		return raw, nil
	}
	obj["client_ts_ms"] = now.UnixMilli()
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, domain.Invalid("metadata", err.Error())
	}
	return out, nil
}

func validate(req ingest.SubmitRequest) error {
	if strings.TrimSpace(req.BoutID) == "" {
		return domain.Invalid("bout_id", "required")
	}
	if req.RoundNumber < 1 {
		return domain.Invalid("round_number", "must be at least 1")
	}
	if strings.TrimSpace(req.EventType) == "" {
		return domain.Invalid("event_type", "required")
	}
	corner, ok := domain.ParseCorner(req.Corner)
	if !ok {
		return domain.Invalid("corner", "must be RED or BLUE")
	}
	aspect, ok := domain.ParseAspect(req.Aspect)
	if !ok {
		return domain.Invalid("aspect", "must be STRIKING or GRAPPLING")
	}
	role, roleCorner, roleAspect, ok := domain.ParseDeviceRole(req.DeviceRole)
	if !ok {
		return domain.Invalid("device_role", "unknown role")
	}
	if roleCorner != corner || roleAspect != aspect {
		return domain.Invalid("device_role", string(role)+" may not score "+string(corner)+"/"+string(aspect))
	}
	return nil
}

// Drain submits queued events in order. Only one pass runs at a time. A
// transient failure stops the pass and schedules the next one from the
// drain retry policy.
func (m *Manager) Drain(ctx context.Context) (DrainReport, error) {
	m.mu.Lock()
	if m.syncing {
		m.mu.Unlock()
		return DrainReport{}, ErrAlreadySyncing
	}
	m.syncing = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	report := DrainReport{Batch: SyncBatch{StartedAt: m.cfg.Clock.Now().UTC()}}
	items, err := m.queue.ListUnsynced(ctx, m.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list queued events: %w", err)
	}
	if len(items) == 0 {
		m.drainSucceeded()
		return report, nil
	}

	var stopErr error
	for _, it := range items {
		report.Batch.Attempted++
		err := m.submit.Submit(ctx, it.Payload)
		if err == nil {
			if err := m.queue.MarkSynced(ctx, it.LocalID, m.cfg.Clock.Now().UTC()); err != nil {
				stopErr = fmt.Errorf("mark %s synced: %w", it.LocalID, err)
				break
			}
			report.Batch.Synced++
			continue
		}
		if !domain.IsTransient(err) {
			report.Batch.Failed++
			report.Exhausted = append(report.Exhausted, &domain.SyncExhaustedError{LocalID: it.LocalID, Attempts: it.RetryCount + 1, LastErr: err.Error()})
			if qerr := m.queue.Quarantine(ctx, it.LocalID, err.Error()); qerr != nil {
				stopErr = qerr
				break
			}
			log.Warn().Err(err).Str("local_id", it.LocalID).Msg("sync_event_rejected")
			continue
		}
		retries, rerr := m.queue.IncrementRetry(ctx, it.LocalID, err.Error())
		if rerr != nil {
			stopErr = rerr
			break
		}
		if retries >= m.cfg.MaxRetries {
			report.Batch.Failed++
			report.Exhausted = append(report.Exhausted, &domain.SyncExhaustedError{LocalID: it.LocalID, Attempts: retries, LastErr: err.Error()})
			if qerr := m.queue.Quarantine(ctx, it.LocalID, err.Error()); qerr != nil {
				stopErr = qerr
				break
			}
		}
		stopErr = err
		break
	}

	report.Batch.FinishedAt = m.cfg.Clock.Now().UTC()
	id, err := m.queue.RecordBatch(context.WithoutCancel(ctx), report.Batch)
	if err != nil {
		log.Error().Err(err).Msg("sync_batch_record_failed")
	}
	report.Batch.ID = id
	metricDrainItems.WithLabelValues("synced").Add(float64(report.Batch.Synced))
	metricDrainItems.WithLabelValues("failed").Add(float64(report.Batch.Failed))

	log.Info().
		Int("attempted", report.Batch.Attempted).
		Int("synced", report.Batch.Synced).
		Int("failed", report.Batch.Failed).
		Msg("sync_drain_pass")

	if stopErr != nil {
		if domain.IsTransient(stopErr) {
			m.setState(StateOffline)
			m.scheduleRetry(ctx)
		}
		return report, stopErr
	}
	if report.Batch.Synced > 0 {
		m.setState(StateOnline)
	}
	m.drainSucceeded()
	return report, nil
}

func (m *Manager) drainSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainAttempt = 0
}

// scheduleRetry arms the next drain. After the policy is exhausted the
// manager waits for the probe to report the gateway back.
func (m *Manager) scheduleRetry(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.drainAttempt++
	delay, ok := m.cfg.Policy.Delay(m.drainAttempt)
	if !ok {
		log.Warn().Int("attempts", m.drainAttempt-1).Msg("sync_drain_retries_exhausted")
		return
	}
	bg := context.WithoutCancel(ctx)
	m.retryTimer = m.cfg.Clock.AfterFunc(delay, func() {
		if _, err := m.Drain(bg); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			log.Debug().Err(err).Msg("sync_drain_retry_failed")
		}
	})
}

func (m *Manager) setState(s ConnState) (changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == s {
		return false
	}
	m.state = s
	metricOnline.Set(boolGauge(s == StateOnline))
	log.Info().Str("state", string(s)).Msg("sync_state_changed")
	return true
}

// CheckConnectivity probes the gateway. Going from offline to online resets
// the drain backoff and drains at once.
func (m *Manager) CheckConnectivity(ctx context.Context) ConnState {
	if m.probe == nil {
		return m.State()
	}
	if !m.probe.Reachable(ctx) {
		m.setState(StateOffline)
		return StateOffline
	}
	if m.setState(StateOnline) {
		m.mu.Lock()
		m.drainAttempt = 0
		m.mu.Unlock()
		if _, err := m.Drain(ctx); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			log.Warn().Err(err).Msg("sync_drain_after_reconnect_failed")
		}
	}
	return m.State()
}

// Run polls connectivity, drains while online with queued events and prunes
// old synced rows until ctx ends or Close is called.
func (m *Manager) Run(ctx context.Context) {
	probe := time.NewTicker(m.cfg.ProbeInterval)
	defer probe.Stop()
	prune := time.NewTicker(m.cfg.PruneInterval)
	defer prune.Stop()

	m.CheckConnectivity(ctx)
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-probe.C:
			if m.isClosed() {
				return
			}
			if m.CheckConnectivity(ctx) != StateOnline {
				continue
			}
			stats, err := m.queue.Stats(ctx)
			if err == nil && stats.Pending > 0 && !m.waitingOnRetry() {
				if _, err := m.Drain(ctx); err != nil && !errors.Is(err, ErrAlreadySyncing) {
					log.Debug().Err(err).Msg("sync_periodic_drain_failed")
				}
			}
		case <-prune.C:
			if _, err := m.Prune(ctx); err != nil {
				log.Warn().Err(err).Msg("sync_prune_failed")
			}
		}
	}
}

func (m *Manager) waitingOnRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retryTimer != nil && m.drainAttempt > 0
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Prune removes synced events older than the retention window.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	n, err := m.queue.Prune(ctx, m.cfg.Clock.Now().Add(-m.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int("removed", n).Msg("sync_pruned")
	}
	return n, nil
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	stats, err := m.queue.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	st := Status{State: m.state, Pending: stats.Pending, Failed: stats.Failed, Syncing: m.syncing}
	m.mu.Unlock()
	st.Indicator = Indicator(st)
	metricPending.Set(float64(stats.Pending))
	return st, nil
}

func Indicator(st Status) string {
	switch {
	case st.Syncing:
		return "syncing"
	case st.State == StateOffline:
		return fmt.Sprintf("offline — queued (%d)", st.Pending)
	default:
		return "online"
	}
}

func (m *Manager) Failed(ctx context.Context) ([]FailedItem, error) {
	items, err := m.queue.ListFailed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FailedItem, 0, len(items))
	for _, it := range items {
		out = append(out, FailedItem{
			Item: it,
			Err:  &domain.SyncExhaustedError{LocalID: it.LocalID, Attempts: it.RetryCount, LastErr: it.LastError},
		})
	}
	return out, nil
}

// Clear drops failed events; with no ids every failed event is dropped.
func (m *Manager) Clear(ctx context.Context, localIDs ...string) (int, error) {
	return m.queue.Clear(ctx, localIDs...)
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
