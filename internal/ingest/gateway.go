// Package ingest validates judging events, persists them once per
// idempotency token and announces them on the event bus.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	"cageside/internal/pkg/worker"
	"cageside/internal/scoring"

	"github.com/rs/zerolog/log"
)

const (
	maxIdempotencyKeyLen = 128
	maxEventTypeLen      = 64
	autoCreatedRounds    = 3
)

type Store interface {
	GetBout(ctx context.Context, id string) (*domain.Bout, error)
	EnsureBout(ctx context.Context, b domain.Bout) (*domain.Bout, error)
	InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, bool, error)
	MarkEventAcked(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(kind eventbus.Kind, boutID string, round int, data any) eventbus.Notification
}

// Runner executes notification tasks off the request path.
type Runner interface {
	Submit(ctx context.Context, task worker.Task) error
}

// ClientCounter reports live display connections for a bout.
type ClientCounter interface {
	ConnectionCount(boutID string) int
}

type Config struct {
	AutoCreateBouts bool
	MaxRounds       int
	Weights         scoring.Weights
}

type Gateway struct {
	store   Store
	bus     Publisher
	runner  Runner
	counter ClientCounter
	cfg     Config
}

func NewGateway(st Store, bus Publisher, runner Runner, cfg Config) *Gateway {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.Weights == nil {
		cfg.Weights = scoring.DefaultWeights
	}
	return &Gateway{store: st, bus: bus, runner: runner, cfg: cfg}
}

// SetClientCounter wires the broadcast hub once it exists.
func (g *Gateway) SetClientCounter(c ClientCounter) {
	g.counter = c
}

func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	ev, err := g.normalize(req)
	if err != nil {
		rejected.WithLabelValues("validation").Inc()
		return SubmitResult{}, err
	}
	if _, err := g.resolveBout(ctx, ev.BoutID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			rejected.WithLabelValues("bout_not_found").Inc()
		}
		return SubmitResult{}, err
	}

	stored, inserted, err := g.store.InsertEvent(ctx, ev)
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyConflict) {
			rejected.WithLabelValues("idempotency_conflict").Inc()
		}
		return SubmitResult{}, err
	}
	res := SubmitResult{Event: stored, Duplicate: !inserted, ConnectedClients: g.connectedClients(stored.BoutID)}
	if !inserted {
		duplicates.Inc()
		log.Debug().
			Str("bout_id", stored.BoutID).
			Str("event_id", stored.ID).
			Str("idempotency_key", stored.IdempotencyKey).
			Msg("event_duplicate")
		return res, nil
	}
	accepted.WithLabelValues(string(stored.Corner), string(stored.Aspect)).Inc()
	g.announce(ctx, stored)
	return res, nil
}

func (g *Gateway) connectedClients(boutID string) int {
	if g.counter == nil {
		return 0
	}
	return g.counter.ConnectionCount(boutID)
}

func (g *Gateway) resolveBout(ctx context.Context, boutID string) (*domain.Bout, error) {
	b, err := g.store.GetBout(ctx, boutID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || !g.cfg.AutoCreateBouts {
		return nil, err
	}
	b, err = g.store.EnsureBout(ctx, domain.Bout{
		ID:              boutID,
		RedFighterID:    boutID + ":red",
		BlueFighterID:   boutID + ":blue",
		ScheduledRounds: autoCreatedRounds,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("bout_id", boutID).Msg("bout_auto_created")
	return b, nil
}

// announce publishes event_added on the request path, so notices follow
// submission order; Publish only fills subscriber mailboxes. The ack write
// goes to the worker pool.
func (g *Gateway) announce(ctx context.Context, ev domain.Event) {
	if g.bus != nil {
		g.bus.Publish(eventbus.KindEventAdded, ev.BoutID, ev.RoundNumber, ev)
	}
	task := func(ctx context.Context) {
		if err := g.store.MarkEventAcked(ctx, ev.ID); err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("event_ack_failed")
		}
	}
	detached := context.WithoutCancel(ctx)
	if g.runner == nil {
		task(detached)
		return
	}
	if err := g.runner.Submit(detached, task); err != nil {
		log.Warn().Err(err).Str("event_id", ev.ID).Msg("notify_submit_failed_inline")
		task(detached)
	}
}

func (g *Gateway) normalize(req SubmitRequest) (domain.Event, error) {
	boutID := strings.TrimSpace(req.BoutID)
	if boutID == "" {
		return domain.Event{}, domain.Invalid("bout_id", "required")
	}
	if req.RoundNumber < 1 || req.RoundNumber > g.cfg.MaxRounds {
		return domain.Event{}, domain.Invalid("round_number", "must be between 1 and "+strconv.Itoa(g.cfg.MaxRounds))
	}
	corner, ok := domain.ParseCorner(req.Corner)
	if !ok {
		return domain.Event{}, domain.Invalid("corner", "must be RED or BLUE")
	}
	aspect, ok := domain.ParseAspect(req.Aspect)
	if !ok {
		return domain.Event{}, domain.Invalid("aspect", "must be STRIKING or GRAPPLING")
	}
	eventType := strings.ToUpper(strings.TrimSpace(req.EventType))
	if eventType == "" || len(eventType) > maxEventTypeLen {
		return domain.Event{}, domain.Invalid("event_type", "required")
	}
	role, roleCorner, roleAspect, ok := domain.ParseDeviceRole(req.DeviceRole)
	if !ok {
		return domain.Event{}, domain.Invalid("device_role", "unknown role")
	}
	if roleCorner != corner || roleAspect != aspect {
		return domain.Event{}, domain.Invalid("device_role", string(role)+" may not score "+string(corner)+"/"+string(aspect))
	}
	value, ok := g.cfg.Weights.Lookup(aspect, eventType)
	if !ok {
		return domain.Event{}, domain.Invalid("event_type", "unknown "+strings.ToLower(string(aspect))+" event "+eventType)
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return domain.Event{}, domain.Invalid("idempotency_key", "too long")
	}
	meta, err := compactMetadata(req.Metadata)
	if err != nil {
		return domain.Event{}, err
	}

	ev := domain.Event{
		BoutID:         boutID,
		RoundNumber:    req.RoundNumber,
		Corner:         corner,
		Aspect:         aspect,
		EventType:      eventType,
		Value:          value,
		DeviceRole:     role,
		Metadata:       meta,
		IdempotencyKey: key,
	}
	ev.RequestHash = requestHash(ev)
	return ev, nil
}

func compactMetadata(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, domain.Invalid("metadata", "must be a JSON object")
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, domain.Invalid("metadata", err.Error())
	}
	return out, nil
}

// requestHash fingerprints the logical event so a reused idempotency key
// with a different payload can be told apart from a retry.
func requestHash(ev domain.Event) string {
	h := sha256.New()
	for _, part := range []string{
		ev.BoutID,
		strconv.Itoa(ev.RoundNumber),
		string(ev.Corner),
		string(ev.Aspect),
		ev.EventType,
		string(ev.DeviceRole),
		string(ev.Metadata),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
