package store

import (
	"context"

	"cageside/internal/domain"
)

const boutColumns = `id, red_fighter_id, blue_fighter_id, scheduled_rounds, status, created_at`

func (s *Store) GetBout(ctx context.Context, id string) (*domain.Bout, error) {
	var b domain.Bout
	err := s.Pool.QueryRow(ctx, `SELECT `+boutColumns+` FROM bouts WHERE id = $1`, id).
		Scan(&b.ID, &b.RedFighterID, &b.BlueFighterID, &b.ScheduledRounds, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, mapNotFound(err, "bout", id)
	}
	return &b, nil
}

// EnsureBout creates the bout when it does not exist yet and returns the
// stored row either way.
func (s *Store) EnsureBout(ctx context.Context, b domain.Bout) (*domain.Bout, error) {
	if b.Status == "" {
		b.Status = "scheduled"
	}
	if _, err := s.Pool.Exec(ctx, `
INSERT INTO bouts (id, red_fighter_id, blue_fighter_id, scheduled_rounds, status)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`,
		b.ID, b.RedFighterID, b.BlueFighterID, b.ScheduledRounds, b.Status); err != nil {
		return nil, err
	}
	return s.GetBout(ctx, b.ID)
}

func (s *Store) SetBoutStatus(ctx context.Context, id, status string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE bouts SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("bout", id)
	}
	return nil
}

// ListBoutsWithRoundStats returns every bout that has at least one round_stats row.
func (s *Store) ListBoutsWithRoundStats(ctx context.Context) ([]domain.Bout, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+boutColumns+` FROM bouts b
WHERE EXISTS (SELECT 1 FROM round_stats rs WHERE rs.bout_id = b.id)
ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Bout
	for rows.Next() {
		var b domain.Bout
		if err := rows.Scan(&b.ID, &b.RedFighterID, &b.BlueFighterID, &b.ScheduledRounds, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
