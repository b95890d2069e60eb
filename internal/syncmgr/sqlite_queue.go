package syncmgr

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type SQLiteQueue struct {
	db *sql.DB
}

// OpenSQLiteQueue opens the device database at path, applies pragmas and
// runs the embedded migrations.
func OpenSQLiteQueue(ctx context.Context, path string) (*SQLiteQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := optimizeSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("sync_queue_opened")
	return &SQLiteQueue{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run queue migrations: %w", err)
	}
	return nil
}

func optimizeSQLite(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"temp_store", "MEMORY"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("set PRAGMA %s: %w", p.name, err)
		}
	}
	return nil
}

func (q *SQLiteQueue) Close() error { return q.db.Close() }

func (q *SQLiteQueue) Enqueue(ctx context.Context, item QueueItem) error {
	payload, err := json.Marshal(item.Payload)
	if err != nil {
		return fmt.Errorf("encode queue payload: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO queue_items (local_id, bout_id, round_number, payload, queued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (local_id) DO NOTHING`,
		item.LocalID, item.BoutID, item.RoundNumber, string(payload), item.QueuedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", item.LocalID, err)
	}
	return nil
}

const itemColumns = `local_id, bout_id, round_number, payload, synced, retry_count, last_error, quarantined, queued_at, synced_at`

func (q *SQLiteQueue) ListUnsynced(ctx context.Context, limit int) ([]QueueItem, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items
		WHERE synced = 0 AND quarantined = 0
		ORDER BY queued_at, rowid`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return q.queryItems(ctx, query, args...)
}

func (q *SQLiteQueue) ListFailed(ctx context.Context) ([]QueueItem, error) {
	return q.queryItems(ctx, `SELECT `+itemColumns+` FROM queue_items
		WHERE synced = 0 AND quarantined = 1
		ORDER BY queued_at, rowid`)
}

func (q *SQLiteQueue) queryItems(ctx context.Context, query string, args ...any) ([]QueueItem, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QueueItem
	for rows.Next() {
		var (
			it          QueueItem
			payload     string
			synced      int
			quarantined int
			queuedAt    int64
			syncedAt    sql.NullInt64
		)
		if err := rows.Scan(&it.LocalID, &it.BoutID, &it.RoundNumber, &payload, &synced, &it.RetryCount, &it.LastError, &quarantined, &queuedAt, &syncedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &it.Payload); err != nil {
			return nil, fmt.Errorf("decode queue payload %s: %w", it.LocalID, err)
		}
		it.Synced = synced == 1
		it.Quarantined = quarantined == 1
		it.QueuedAt = time.UnixMilli(queuedAt).UTC()
		if syncedAt.Valid {
			t := time.UnixMilli(syncedAt.Int64).UTC()
			it.SyncedAt = &t
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q *SQLiteQueue) MarkSynced(ctx context.Context, localID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_items SET synced = 1, synced_at = ?, last_error = ''
		WHERE local_id = ? AND synced = 0`, at.UnixMilli(), localID)
	return err
}

func (q *SQLiteQueue) IncrementRetry(ctx context.Context, localID, lastErr string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		UPDATE queue_items SET retry_count = retry_count + 1, last_error = ?
		WHERE local_id = ? AND synced = 0
		RETURNING retry_count`, lastErr, localID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("queue item %s not pending", localID)
	}
	return count, err
}

func (q *SQLiteQueue) Quarantine(ctx context.Context, localID, reason string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE queue_items SET quarantined = 1, last_error = ?
		WHERE local_id = ? AND synced = 0`, reason, localID)
	return err
}

// Clear deletes the given failed items, or every failed item when no id is
// given.
func (q *SQLiteQueue) Clear(ctx context.Context, localIDs ...string) (int, error) {
	query := `DELETE FROM queue_items WHERE quarantined = 1 AND synced = 0`
	args := make([]any, 0, len(localIDs))
	if len(localIDs) > 0 {
		query += ` AND local_id IN (?` + strings.Repeat(", ?", len(localIDs)-1) + `)`
		for _, id := range localIDs {
			args = append(args, id)
		}
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *SQLiteQueue) Prune(ctx context.Context, syncedBefore time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM queue_items WHERE synced = 1 AND synced_at < ?`, syncedBefore.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *SQLiteQueue) RecordBatch(ctx context.Context, b SyncBatch) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO sync_batches (started_at, finished_at, attempted, synced, failed)
		VALUES (?, ?, ?, ?, ?)`,
		b.StartedAt.UnixMilli(), b.FinishedAt.UnixMilli(), b.Attempted, b.Synced, b.Failed)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *SQLiteQueue) Batches(ctx context.Context) ([]SyncBatch, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, started_at, finished_at, attempted, synced, failed FROM sync_batches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SyncBatch
	for rows.Next() {
		var b SyncBatch
		var started, finished int64
		if err := rows.Scan(&b.ID, &started, &finished, &b.Attempted, &b.Synced, &b.Failed); err != nil {
			return nil, err
		}
		b.StartedAt = time.UnixMilli(started).UTC()
		b.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *SQLiteQueue) Stats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	err := q.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN synced = 0 AND quarantined = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN synced = 0 AND quarantined = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0)
		FROM queue_items`).Scan(&s.Pending, &s.Failed, &s.Synced)
	return s, err
}
