package store

import (
	"context"
	"fmt"
	"time"

	"cageside/internal/domain"
)

const roundStatsColumns = `bout_id, round_number, subject_id, corner, strikes_attempted, strikes_landed, sig_strikes_attempted, sig_strikes_landed, knockdowns, takedowns_attempted, takedowns_landed, submission_attempts, control_secs, control_by_type, events_processed, updated_at`

func scanRoundStats(row rowScanner) (domain.RoundStats, error) {
	var (
		r      domain.RoundStats
		corner string
	)
	err := row.Scan(&r.BoutID, &r.RoundNumber, &r.SubjectID, &corner, &r.StrikesAttempted, &r.StrikesLanded,
		&r.SigStrikesAttempted, &r.SigStrikesLanded, &r.Knockdowns, &r.TakedownsAttempted, &r.TakedownsLanded,
		&r.SubmissionAttempts, &r.ControlSecs, &r.ControlByType, &r.EventsProcessed, &r.UpdatedAt)
	if err != nil {
		return domain.RoundStats{}, err
	}
	r.Corner = domain.Corner(corner)
	if r.ControlByType == nil {
		r.ControlByType = map[string]float64{}
	}
	return r, nil
}

// UpsertRoundStats reports whether the row was newly inserted.
func (s *Store) UpsertRoundStats(ctx context.Context, r domain.RoundStats) (bool, error) {
	var inserted bool
	err := WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		return s.Pool.QueryRow(ctx, `
INSERT INTO round_stats (`+roundStatsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
ON CONFLICT (bout_id, round_number, subject_id) DO UPDATE SET
  corner = EXCLUDED.corner,
  strikes_attempted = EXCLUDED.strikes_attempted,
  strikes_landed = EXCLUDED.strikes_landed,
  sig_strikes_attempted = EXCLUDED.sig_strikes_attempted,
  sig_strikes_landed = EXCLUDED.sig_strikes_landed,
  knockdowns = EXCLUDED.knockdowns,
  takedowns_attempted = EXCLUDED.takedowns_attempted,
  takedowns_landed = EXCLUDED.takedowns_landed,
  submission_attempts = EXCLUDED.submission_attempts,
  control_secs = EXCLUDED.control_secs,
  control_by_type = EXCLUDED.control_by_type,
  events_processed = EXCLUDED.events_processed,
  updated_at = now()
RETURNING (xmax = 0)`,
			r.BoutID, r.RoundNumber, r.SubjectID, string(r.Corner), r.StrikesAttempted, r.StrikesLanded,
			r.SigStrikesAttempted, r.SigStrikesLanded, r.Knockdowns, r.TakedownsAttempted, r.TakedownsLanded,
			r.SubmissionAttempts, r.ControlSecs, nonNilControl(r.ControlByType), r.EventsProcessed).Scan(&inserted)
	})
	return inserted, err
}

func (s *Store) GetRoundStats(ctx context.Context, boutID string, round int, subjectID string) (*domain.RoundStats, error) {
	r, err := scanRoundStats(s.Pool.QueryRow(ctx, `SELECT `+roundStatsColumns+` FROM round_stats WHERE bout_id = $1 AND round_number = $2 AND subject_id = $3`, boutID, round, subjectID))
	if err != nil {
		return nil, mapNotFound(err, "round_stats", fmt.Sprintf("%s/%d/%s", boutID, round, subjectID))
	}
	return &r, nil
}

func (s *Store) ListRoundStats(ctx context.Context, boutID, subjectID string) ([]domain.RoundStats, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+roundStatsColumns+` FROM round_stats WHERE bout_id = $1 AND subject_id = $2 ORDER BY round_number`, boutID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RoundStats
	for rows.Next() {
		r, err := scanRoundStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const fightStatsColumns = `bout_id, subject_id, corner, rounds, strikes_attempted, strikes_landed, sig_strikes_attempted, sig_strikes_landed, knockdowns, takedowns_attempted, takedowns_landed, submission_attempts, control_secs, control_by_type, strike_accuracy, sig_strike_accuracy, takedown_accuracy, strikes_per_minute, control_pct, updated_at`

func scanFightStats(row rowScanner) (domain.FightStats, error) {
	var (
		f      domain.FightStats
		corner string
	)
	err := row.Scan(&f.BoutID, &f.SubjectID, &corner, &f.Rounds, &f.StrikesAttempted, &f.StrikesLanded,
		&f.SigStrikesAttempted, &f.SigStrikesLanded, &f.Knockdowns, &f.TakedownsAttempted, &f.TakedownsLanded,
		&f.SubmissionAttempts, &f.ControlSecs, &f.ControlByType, &f.StrikeAccuracy, &f.SigStrikeAccuracy,
		&f.TakedownAccuracy, &f.StrikesPerMinute, &f.ControlPct, &f.UpdatedAt)
	if err != nil {
		return domain.FightStats{}, err
	}
	f.Corner = domain.Corner(corner)
	if f.ControlByType == nil {
		f.ControlByType = map[string]float64{}
	}
	return f, nil
}

func (s *Store) UpsertFightStats(ctx context.Context, f domain.FightStats) (bool, error) {
	var inserted bool
	err := WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		return s.Pool.QueryRow(ctx, `
INSERT INTO fight_stats (`+fightStatsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
ON CONFLICT (bout_id, subject_id) DO UPDATE SET
  corner = EXCLUDED.corner,
  rounds = EXCLUDED.rounds,
  strikes_attempted = EXCLUDED.strikes_attempted,
  strikes_landed = EXCLUDED.strikes_landed,
  sig_strikes_attempted = EXCLUDED.sig_strikes_attempted,
  sig_strikes_landed = EXCLUDED.sig_strikes_landed,
  knockdowns = EXCLUDED.knockdowns,
  takedowns_attempted = EXCLUDED.takedowns_attempted,
  takedowns_landed = EXCLUDED.takedowns_landed,
  submission_attempts = EXCLUDED.submission_attempts,
  control_secs = EXCLUDED.control_secs,
  control_by_type = EXCLUDED.control_by_type,
  strike_accuracy = EXCLUDED.strike_accuracy,
  sig_strike_accuracy = EXCLUDED.sig_strike_accuracy,
  takedown_accuracy = EXCLUDED.takedown_accuracy,
  strikes_per_minute = EXCLUDED.strikes_per_minute,
  control_pct = EXCLUDED.control_pct,
  updated_at = now()
RETURNING (xmax = 0)`,
			f.BoutID, f.SubjectID, string(f.Corner), f.Rounds, f.StrikesAttempted, f.StrikesLanded,
			f.SigStrikesAttempted, f.SigStrikesLanded, f.Knockdowns, f.TakedownsAttempted, f.TakedownsLanded,
			f.SubmissionAttempts, f.ControlSecs, nonNilControl(f.ControlByType), f.StrikeAccuracy, f.SigStrikeAccuracy,
			f.TakedownAccuracy, f.StrikesPerMinute, f.ControlPct).Scan(&inserted)
	})
	return inserted, err
}

func (s *Store) GetFightStats(ctx context.Context, boutID, subjectID string) (*domain.FightStats, error) {
	f, err := scanFightStats(s.Pool.QueryRow(ctx, `SELECT `+fightStatsColumns+` FROM fight_stats WHERE bout_id = $1 AND subject_id = $2`, boutID, subjectID))
	if err != nil {
		return nil, mapNotFound(err, "fight_stats", boutID+"/"+subjectID)
	}
	return &f, nil
}

func (s *Store) ListFightStatsForSubject(ctx context.Context, subjectID string) ([]domain.FightStats, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+fightStatsColumns+` FROM fight_stats WHERE subject_id = $1 ORDER BY bout_id`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FightStats
	for rows.Next() {
		f, err := scanFightStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListStatSubjects returns every subject with at least one fight_stats row.
func (s *Store) ListStatSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT subject_id FROM fight_stats ORDER BY subject_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

const careerStatsColumns = `subject_id, total_fights, wins, losses, draws, total_rounds, strikes_attempted, strikes_landed, sig_strikes_attempted, sig_strikes_landed, knockdowns, takedowns_attempted, takedowns_landed, submission_attempts, control_secs, avg_sig_strike_accuracy, weighted_sig_strike_accuracy, avg_strikes_per_minute, avg_control_pct, updated_at`

func (s *Store) UpsertCareerStats(ctx context.Context, c domain.CareerStats) (bool, error) {
	var inserted bool
	err := WithRetry(ctx, 3, 20*time.Millisecond, func() error {
		return s.Pool.QueryRow(ctx, `
INSERT INTO career_stats (`+careerStatsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
ON CONFLICT (subject_id) DO UPDATE SET
  total_fights = EXCLUDED.total_fights,
  wins = EXCLUDED.wins,
  losses = EXCLUDED.losses,
  draws = EXCLUDED.draws,
  total_rounds = EXCLUDED.total_rounds,
  strikes_attempted = EXCLUDED.strikes_attempted,
  strikes_landed = EXCLUDED.strikes_landed,
  sig_strikes_attempted = EXCLUDED.sig_strikes_attempted,
  sig_strikes_landed = EXCLUDED.sig_strikes_landed,
  knockdowns = EXCLUDED.knockdowns,
  takedowns_attempted = EXCLUDED.takedowns_attempted,
  takedowns_landed = EXCLUDED.takedowns_landed,
  submission_attempts = EXCLUDED.submission_attempts,
  control_secs = EXCLUDED.control_secs,
  avg_sig_strike_accuracy = EXCLUDED.avg_sig_strike_accuracy,
  weighted_sig_strike_accuracy = EXCLUDED.weighted_sig_strike_accuracy,
  avg_strikes_per_minute = EXCLUDED.avg_strikes_per_minute,
  avg_control_pct = EXCLUDED.avg_control_pct,
  updated_at = now()
RETURNING (xmax = 0)`,
			c.SubjectID, c.TotalFights, c.Wins, c.Losses, c.Draws, c.TotalRounds, c.StrikesAttempted, c.StrikesLanded,
			c.SigStrikesAttempted, c.SigStrikesLanded, c.Knockdowns, c.TakedownsAttempted, c.TakedownsLanded,
			c.SubmissionAttempts, c.ControlSecs, c.AvgSigStrikeAccuracy, c.WeightedSigStrikeAccuracy,
			c.AvgStrikesPerMinute, c.AvgControlPct).Scan(&inserted)
	})
	return inserted, err
}

func (s *Store) GetCareerStats(ctx context.Context, subjectID string) (*domain.CareerStats, error) {
	var c domain.CareerStats
	err := s.Pool.QueryRow(ctx, `SELECT `+careerStatsColumns+` FROM career_stats WHERE subject_id = $1`, subjectID).Scan(
		&c.SubjectID, &c.TotalFights, &c.Wins, &c.Losses, &c.Draws, &c.TotalRounds, &c.StrikesAttempted, &c.StrikesLanded,
		&c.SigStrikesAttempted, &c.SigStrikesLanded, &c.Knockdowns, &c.TakedownsAttempted, &c.TakedownsLanded,
		&c.SubmissionAttempts, &c.ControlSecs, &c.AvgSigStrikeAccuracy, &c.WeightedSigStrikeAccuracy,
		&c.AvgStrikesPerMinute, &c.AvgControlPct, &c.UpdatedAt)
	if err != nil {
		return nil, mapNotFound(err, "career_stats", subjectID)
	}
	return &c, nil
}

func nonNilControl(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
