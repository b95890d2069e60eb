package stats

import (
	"context"
	"fmt"

	"cageside/internal/domain"

	"github.com/rs/zerolog/log"
)

type Store interface {
	GetBout(ctx context.Context, id string) (*domain.Bout, error)
	ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error)
	ListEventRounds(ctx context.Context, boutID string) ([]int, error)
	UpsertRoundStats(ctx context.Context, r domain.RoundStats) (bool, error)
	GetRoundStats(ctx context.Context, boutID string, round int, subjectID string) (*domain.RoundStats, error)
	ListRoundStats(ctx context.Context, boutID, subjectID string) ([]domain.RoundStats, error)
	UpsertFightStats(ctx context.Context, f domain.FightStats) (bool, error)
	GetFightStats(ctx context.Context, boutID, subjectID string) (*domain.FightStats, error)
	ListFightStatsForSubject(ctx context.Context, subjectID string) ([]domain.FightStats, error)
	ListSubjectOutcomes(ctx context.Context, subjectID string) ([]domain.SubjectOutcome, error)
	UpsertCareerStats(ctx context.Context, c domain.CareerStats) (bool, error)
	GetCareerStats(ctx context.Context, subjectID string) (*domain.CareerStats, error)
}

// Outcome is what one aggregation step reports back to the job record.
type Outcome struct {
	RowsProcessed int
	RowsUpdated   int
	Warnings      []string
}

type Pipeline struct {
	store Store
}

func NewPipeline(st Store) *Pipeline {
	return &Pipeline{store: st}
}

// Subjects returns the bout's red and blue fighter ids.
func (p *Pipeline) Subjects(ctx context.Context, boutID string) ([]string, error) {
	b, err := p.store.GetBout(ctx, boutID)
	if err != nil {
		return nil, err
	}
	return []string{b.RedFighterID, b.BlueFighterID}, nil
}

// Rounds returns the rounds of the bout that have events.
func (p *Pipeline) Rounds(ctx context.Context, boutID string) ([]int, error) {
	return p.store.ListEventRounds(ctx, boutID)
}

func (p *Pipeline) subjectCorner(ctx context.Context, boutID, subjectID string) (domain.Corner, error) {
	b, err := p.store.GetBout(ctx, boutID)
	if err != nil {
		return "", err
	}
	corner, ok := b.CornerOf(subjectID)
	if !ok {
		return "", domain.Invalid("subject_id", fmt.Sprintf("%s does not fight in %s", subjectID, boutID))
	}
	return corner, nil
}

func (p *Pipeline) AggregateRound(ctx context.Context, boutID string, round int, subjectID string) (Outcome, error) {
	if round < 1 {
		return Outcome{}, domain.Invalid("round_number", "must be positive")
	}
	corner, err := p.subjectCorner(ctx, boutID, subjectID)
	if err != nil {
		return Outcome{}, err
	}
	events, err := p.store.ListEvents(ctx, boutID, round)
	if err != nil {
		return Outcome{}, err
	}
	row, warnings := BuildRoundStats(boutID, round, subjectID, corner, events)
	if _, err := p.store.UpsertRoundStats(ctx, row); err != nil {
		return Outcome{}, err
	}
	if len(warnings) > 0 {
		log.Warn().
			Str("bout_id", boutID).
			Int("round_number", round).
			Str("subject_id", subjectID).
			Strs("warnings", warnings).
			Msg("round_stats_warnings")
	}
	return Outcome{RowsProcessed: row.EventsProcessed, RowsUpdated: 1, Warnings: warnings}, nil
}

func (p *Pipeline) AggregateFight(ctx context.Context, boutID, subjectID string) (Outcome, error) {
	corner, err := p.subjectCorner(ctx, boutID, subjectID)
	if err != nil {
		return Outcome{}, err
	}
	rows, err := p.store.ListRoundStats(ctx, boutID, subjectID)
	if err != nil {
		return Outcome{}, err
	}
	fight := SumFight(boutID, subjectID, corner, rows)
	if _, err := p.store.UpsertFightStats(ctx, fight); err != nil {
		return Outcome{}, err
	}
	return Outcome{RowsProcessed: len(rows), RowsUpdated: 1}, nil
}

func (p *Pipeline) AggregateCareer(ctx context.Context, subjectID string) (Outcome, error) {
	if subjectID == "" {
		return Outcome{}, domain.Invalid("subject_id", "required")
	}
	fights, err := p.store.ListFightStatsForSubject(ctx, subjectID)
	if err != nil {
		return Outcome{}, err
	}
	outcomes, err := p.store.ListSubjectOutcomes(ctx, subjectID)
	if err != nil {
		return Outcome{}, err
	}
	career := SumCareer(subjectID, fights, outcomes)
	if _, err := p.store.UpsertCareerStats(ctx, career); err != nil {
		return Outcome{}, err
	}
	return Outcome{RowsProcessed: len(fights), RowsUpdated: 1}, nil
}

func (p *Pipeline) RoundStats(ctx context.Context, boutID string, round int, subjectID string) (*domain.RoundStats, error) {
	return p.store.GetRoundStats(ctx, boutID, round, subjectID)
}

func (p *Pipeline) FightStats(ctx context.Context, boutID, subjectID string) (*domain.FightStats, error) {
	return p.store.GetFightStats(ctx, boutID, subjectID)
}

func (p *Pipeline) CareerStats(ctx context.Context, subjectID string) (*domain.CareerStats, error) {
	return p.store.GetCareerStats(ctx, subjectID)
}
