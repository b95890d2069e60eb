// Package scoring is the delta scoring service: it recomputes round results
// from the event log, finalizes fights and assembles display state.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
	core "cageside/internal/scoring"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

type Store interface {
	GetBout(ctx context.Context, id string) (*domain.Bout, error)
	SetBoutStatus(ctx context.Context, id, status string) error
	ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error)
	ListEventRounds(ctx context.Context, boutID string) ([]int, error)
	UpsertRoundResult(ctx context.Context, r domain.RoundResult) error
	GetRoundResult(ctx context.Context, boutID string, round int) (*domain.RoundResult, error)
	ListRoundResults(ctx context.Context, boutID string) ([]domain.RoundResult, error)
	UpsertFightResult(ctx context.Context, f domain.FightResult) error
	GetFightResult(ctx context.Context, boutID string) (*domain.FightResult, error)
}

type Publisher interface {
	Publish(kind eventbus.Kind, boutID string, round int, data any) eventbus.Notification
}

// StatsTrigger starts asynchronous stat aggregation after a lock or finalize.
type StatsTrigger interface {
	TriggerRoundLocked(ctx context.Context, boutID string, round int) error
	TriggerPostFight(ctx context.Context, boutID string) error
}

type Service struct {
	store    Store
	bus      Publisher
	triggers StatsTrigger
	group    singleflight.Group
	now      func() time.Time
}

func NewService(st Store, bus Publisher) *Service {
	return &Service{store: st, bus: bus, now: time.Now}
}

func (s *Service) SetStatsTrigger(t StatsTrigger) {
	s.triggers = t
}

// ComputeRound recomputes one round from every stored event and upserts the
// result. Concurrent calls for the same round share one computation.
func (s *Service) ComputeRound(ctx context.Context, boutID string, round int) (*domain.RoundResult, error) {
	if boutID == "" {
		return nil, domain.Invalid("bout_id", "required")
	}
	if round < 1 {
		return nil, domain.Invalid("round_number", "must be positive")
	}
	if _, err := s.store.GetBout(ctx, boutID); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/%d", boutID, round)
	// The flight outlives the caller that started it; coalesced callers
	// must not inherit its cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(key, func() (any, error) {
		ctx := flightCtx
		start := time.Now()
		events, err := s.store.ListEvents(ctx, boutID, round)
		if err != nil {
			return nil, err
		}
		res := core.ComputeRound(boutID, round, events)
		if err := s.store.UpsertRoundResult(ctx, res); err != nil {
			return nil, err
		}
		roundComputeSeconds.Observe(time.Since(start).Seconds())
		s.publish(eventbus.KindRoundComputed, boutID, round, res)
		log.Info().
			Str("bout_id", boutID).
			Int("round_number", round).
			Str("score", res.ScoreLabel()).
			Str("winner", string(res.Winner)).
			Float64("delta", res.Delta).
			Msg("round_computed")
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		roundComputeShared.Inc()
	}
	res := v.(domain.RoundResult)
	return &res, nil
}

// LockRound computes the round and starts round-level stat aggregation.
func (s *Service) LockRound(ctx context.Context, boutID string, round int) (*domain.RoundResult, error) {
	res, err := s.ComputeRound(ctx, boutID, round)
	if err != nil {
		return nil, err
	}
	if s.triggers != nil {
		if err := s.triggers.TriggerRoundLocked(ctx, boutID, round); err != nil {
			log.Warn().Err(err).Str("bout_id", boutID).Int("round_number", round).Msg("round_locked_trigger_failed")
		}
	}
	return res, nil
}

// FinalizeFight returns the stored result unless refinalize is set;
// otherwise every round with events is recomputed and the 10-point round
// scores are summed.
func (s *Service) FinalizeFight(ctx context.Context, boutID string, refinalize bool) (*FinalizeResult, error) {
	if boutID == "" {
		return nil, domain.Invalid("bout_id", "required")
	}
	if _, err := s.store.GetBout(ctx, boutID); err != nil {
		return nil, err
	}
	if !refinalize {
		existing, err := s.store.GetFightResult(ctx, boutID)
		if err == nil {
			return &FinalizeResult{Result: *existing, AlreadyFinalized: true}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	rounds, err := s.store.ListEventRounds(ctx, boutID)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, errNothingToFinalize
	}
	results := make([]domain.RoundResult, 0, len(rounds))
	for _, n := range rounds {
		r, err := s.ComputeRound(ctx, boutID, n)
		if err != nil {
			return nil, fmt.Errorf("compute round %d: %w", n, err)
		}
		results = append(results, *r)
	}
	fight := core.ComputeFight(boutID, results, s.now())
	if err := s.store.UpsertFightResult(ctx, fight); err != nil {
		return nil, err
	}
	if err := s.store.SetBoutStatus(ctx, boutID, "finalized"); err != nil {
		log.Warn().Err(err).Str("bout_id", boutID).Msg("bout_status_update_failed")
	}
	s.publish(eventbus.KindFightFinalized, boutID, 0, fight)
	log.Info().
		Str("bout_id", boutID).
		Int("final_red", fight.FinalRed).
		Int("final_blue", fight.FinalBlue).
		Str("winner", string(fight.Winner)).
		Bool("refinalize", refinalize).
		Msg("fight_finalized")
	if s.triggers != nil {
		if err := s.triggers.TriggerPostFight(ctx, boutID); err != nil {
			log.Warn().Err(err).Str("bout_id", boutID).Msg("post_fight_trigger_failed")
		}
	}
	return &FinalizeResult{Result: fight}, nil
}

// State assembles the state_sync payload. A round filter of zero includes
// every round's events.
func (s *Service) State(ctx context.Context, boutID string, roundFilter int) (*StateSnapshot, error) {
	if roundFilter < 0 {
		return nil, domain.Invalid("round_number", "must not be negative")
	}
	bout, err := s.store.GetBout(ctx, boutID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, boutID, roundFilter)
	if err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRoundResults(ctx, boutID)
	if err != nil {
		return nil, err
	}
	snap := &StateSnapshot{Bout: *bout, RoundFilter: roundFilter, Events: events, RoundResults: rounds}
	fight, err := s.store.GetFightResult(ctx, boutID)
	switch {
	case err == nil:
		snap.FightResult = fight
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	return snap, nil
}

func (s *Service) ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error) {
	if boutID == "" {
		return nil, domain.Invalid("bout_id", "required")
	}
	return s.store.ListEvents(ctx, boutID, round)
}

func (s *Service) RoundResult(ctx context.Context, boutID string, round int) (*domain.RoundResult, error) {
	return s.store.GetRoundResult(ctx, boutID, round)
}

func (s *Service) FightResult(ctx context.Context, boutID string) (*domain.FightResult, error) {
	return s.store.GetFightResult(ctx, boutID)
}

func (s *Service) publish(kind eventbus.Kind, boutID string, round int, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(kind, boutID, round, data)
}
