package store

import (
	"context"
	"errors"

	"cageside/internal/domain"

	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, bout_id, round_number, corner, aspect, event_type, value, device_role, metadata, idempotency_key, request_hash, acked, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		ev     domain.Event
		corner string
		aspect string
		role   string
		key    *string
		meta   []byte
	)
	if err := row.Scan(&ev.ID, &ev.BoutID, &ev.RoundNumber, &corner, &aspect, &ev.EventType, &ev.Value, &role, &meta, &key, &ev.RequestHash, &ev.Acked, &ev.CreatedAt); err != nil {
		return domain.Event{}, err
	}
	ev.Corner = domain.Corner(corner)
	ev.Aspect = domain.Aspect(aspect)
	ev.DeviceRole = domain.DeviceRole(role)
	ev.Metadata = meta
	if key != nil {
		ev.IdempotencyKey = *key
	}
	return ev, nil
}

// InsertEvent appends the event. When the idempotency key was already used
// the stored event is returned with inserted=false; a key reused with a
// different request hash fails with ErrIdempotencyConflict.
func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (domain.Event, bool, error) {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	row := s.Pool.QueryRow(ctx, `
INSERT INTO events (id, bout_id, round_number, corner, aspect, event_type, value, device_role, metadata, idempotency_key, request_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING `+eventColumns,
		ev.ID, ev.BoutID, ev.RoundNumber, string(ev.Corner), string(ev.Aspect), ev.EventType, ev.Value,
		string(ev.DeviceRole), jsonParam(ev.Metadata), textParam(ev.IdempotencyKey), ev.RequestHash)
	stored, err := scanEvent(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, false, err
	}
	existing, err := s.GetEventByIdempotencyKey(ctx, ev.IdempotencyKey)
	if err != nil {
		return domain.Event{}, false, err
	}
	if existing.RequestHash != ev.RequestHash {
		return domain.Event{}, false, domain.ErrIdempotencyConflict
	}
	return *existing, false, nil
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (*domain.Event, error) {
	ev, err := scanEvent(s.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, mapNotFound(err, "event", key)
	}
	return &ev, nil
}

// ListEvents returns the bout's events ordered by (created_at, id). A round
// of zero lists every round.
func (s *Store) ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT `+eventColumns+` FROM events
WHERE bout_id = $1 AND ($2::int = 0 OR round_number = $2)
ORDER BY created_at, id`, boutID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListEventRounds returns the distinct round numbers that have events.
func (s *Store) ListEventRounds(ctx context.Context, boutID string) ([]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT DISTINCT round_number FROM events WHERE bout_id = $1 ORDER BY round_number`, boutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkEventAcked flips the only mutable column of an event.
func (s *Store) MarkEventAcked(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE events SET acked = true WHERE id = $1 AND acked = false`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.NotFound("event", id)
		}
	}
	return nil
}
