package store

import (
	"context"
	"fmt"
	"time"

	"cageside/internal/domain"
)

const roundResultColumns = `bout_id, round_number, red_points, blue_points, delta, red_score, blue_score, winner, red_breakdown, blue_breakdown, total_events`

func scanRoundResult(row rowScanner) (domain.RoundResult, error) {
	var (
		r      domain.RoundResult
		winner string
	)
	if err := row.Scan(&r.BoutID, &r.RoundNumber, &r.RedPoints, &r.BluePoints, &r.Delta, &r.RedScore, &r.BlueScore, &winner, &r.RedBreakdown, &r.BlueBreakdown, &r.TotalEvents); err != nil {
		return domain.RoundResult{}, err
	}
	r.Winner = domain.Winner(winner)
	if r.RedBreakdown == nil {
		r.RedBreakdown = map[string]domain.BreakdownEntry{}
	}
	if r.BlueBreakdown == nil {
		r.BlueBreakdown = map[string]domain.BreakdownEntry{}
	}
	return r, nil
}

// UpsertRoundResult writes every column in one statement so a total is never
// paired with a stale breakdown.
func (s *Store) UpsertRoundResult(ctx context.Context, r domain.RoundResult) error {
	return WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		_, err := s.Pool.Exec(ctx, `
INSERT INTO round_results (`+roundResultColumns+`, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
ON CONFLICT (bout_id, round_number) DO UPDATE SET
  red_points = EXCLUDED.red_points,
  blue_points = EXCLUDED.blue_points,
  delta = EXCLUDED.delta,
  red_score = EXCLUDED.red_score,
  blue_score = EXCLUDED.blue_score,
  winner = EXCLUDED.winner,
  red_breakdown = EXCLUDED.red_breakdown,
  blue_breakdown = EXCLUDED.blue_breakdown,
  total_events = EXCLUDED.total_events,
  updated_at = now()`,
			r.BoutID, r.RoundNumber, r.RedPoints, r.BluePoints, r.Delta, r.RedScore, r.BlueScore, string(r.Winner),
			r.RedBreakdown, r.BlueBreakdown, r.TotalEvents)
		return err
	})
}

func (s *Store) GetRoundResult(ctx context.Context, boutID string, round int) (*domain.RoundResult, error) {
	r, err := scanRoundResult(s.Pool.QueryRow(ctx, `SELECT `+roundResultColumns+` FROM round_results WHERE bout_id = $1 AND round_number = $2`, boutID, round))
	if err != nil {
		return nil, mapNotFound(err, "round_result", fmt.Sprintf("%s/%d", boutID, round))
	}
	return &r, nil
}

func (s *Store) ListRoundResults(ctx context.Context, boutID string) ([]domain.RoundResult, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+roundResultColumns+` FROM round_results WHERE bout_id = $1 ORDER BY round_number`, boutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.RoundResult{}
	for rows.Next() {
		r, err := scanRoundResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertFightResult(ctx context.Context, f domain.FightResult) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO fight_results (bout_id, final_red, final_blue, winner, rounds, finalized_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (bout_id) DO UPDATE SET
  final_red = EXCLUDED.final_red,
  final_blue = EXCLUDED.final_blue,
  winner = EXCLUDED.winner,
  rounds = EXCLUDED.rounds,
  finalized_at = EXCLUDED.finalized_at`,
		f.BoutID, f.FinalRed, f.FinalBlue, string(f.Winner), f.Rounds, f.FinalizedAt)
	return err
}

func (s *Store) GetFightResult(ctx context.Context, boutID string) (*domain.FightResult, error) {
	var (
		f      domain.FightResult
		winner string
	)
	err := s.Pool.QueryRow(ctx, `SELECT bout_id, final_red, final_blue, winner, rounds, finalized_at FROM fight_results WHERE bout_id = $1`, boutID).
		Scan(&f.BoutID, &f.FinalRed, &f.FinalBlue, &winner, &f.Rounds, &f.FinalizedAt)
	if err != nil {
		return nil, mapNotFound(err, "fight_result", boutID)
	}
	f.Winner = domain.Winner(winner)
	return &f, nil
}

// ListSubjectOutcomes returns the finalized fights the subject took part in.
func (s *Store) ListSubjectOutcomes(ctx context.Context, subjectID string) ([]domain.SubjectOutcome, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT f.bout_id,
       CASE WHEN b.red_fighter_id = $1 THEN 'RED' ELSE 'BLUE' END,
       f.winner
FROM fight_results f
JOIN bouts b ON b.id = f.bout_id
WHERE b.red_fighter_id = $1 OR b.blue_fighter_id = $1
ORDER BY f.finalized_at, f.bout_id`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SubjectOutcome
	for rows.Next() {
		var o domain.SubjectOutcome
		var corner, winner string
		if err := rows.Scan(&o.BoutID, &corner, &winner); err != nil {
			return nil, err
		}
		o.Corner = domain.Corner(corner)
		o.Winner = domain.Winner(winner)
		out = append(out, o)
	}
	return out, rows.Err()
}
