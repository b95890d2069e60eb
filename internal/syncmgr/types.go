// Package syncmgr keeps a scoring device usable while the gateway is
// unreachable: events are queued locally and drained once connectivity
// returns.
package syncmgr

import (
	"context"
	"errors"
	"time"

	"cageside/internal/ingest"
)

var ErrAlreadySyncing = errors.New("sync already in progress")

// QueueItem is one locally recorded event. LocalID doubles as the
// idempotency key sent to the gateway.
type QueueItem struct {
	LocalID     string               `json:"local_id"`
	BoutID      string               `json:"bout_id"`
	RoundNumber int                  `json:"round_number"`
	Payload     ingest.SubmitRequest `json:"payload"`
	Synced      bool                 `json:"synced"`
	RetryCount  int                  `json:"retry_count"`
	LastError   string               `json:"last_error,omitempty"`
	Quarantined bool                 `json:"quarantined"`
	QueuedAt    time.Time            `json:"queued_at"`
	SyncedAt    *time.Time           `json:"synced_at,omitempty"`
}

type SyncBatch struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int       `json:"attempted"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
}

type QueueStats struct {
	Pending int
	Failed  int
	Synced  int
}

// Queue is the durable device-local store. Synced is monotonic: once
// MarkSynced succeeds the item never appears in ListUnsynced again.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	ListUnsynced(ctx context.Context, limit int) ([]QueueItem, error)
	MarkSynced(ctx context.Context, localID string, at time.Time) error
	IncrementRetry(ctx context.Context, localID, lastErr string) (int, error)
	Quarantine(ctx context.Context, localID, reason string) error
	ListFailed(ctx context.Context) ([]QueueItem, error)
	Clear(ctx context.Context, localIDs ...string) (int, error)
	Prune(ctx context.Context, syncedBefore time.Time) (int, error)
	RecordBatch(ctx context.Context, b SyncBatch) (int64, error)
	Stats(ctx context.Context) (QueueStats, error)
}

// Submitter delivers one event to the gateway. It returns a
// *domain.TransientNetworkError when the gateway could not be reached.
type Submitter interface {
	Submit(ctx context.Context, req ingest.SubmitRequest) error
}

type Probe interface {
	Reachable(ctx context.Context) bool
}
