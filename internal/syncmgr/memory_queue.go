package syncmgr

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is a non-durable Queue for tests and dry runs.
type MemoryQueue struct {
	mu      sync.Mutex
	items   []*QueueItem
	byID    map[string]*QueueItem
	batches []SyncBatch
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byID: map[string]*QueueItem{}}
}

func (q *MemoryQueue) Enqueue(_ context.Context, item QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[item.LocalID]; ok {
		return nil
	}
	it := item
	it.Synced, it.Quarantined, it.RetryCount, it.SyncedAt = false, false, 0, nil
	q.items = append(q.items, &it)
	q.byID[it.LocalID] = &it
	return nil
}

func (q *MemoryQueue) ListUnsynced(_ context.Context, limit int) ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueItem
	for _, it := range q.items {
		if it.Synced || it.Quarantined {
			continue
		}
		out = append(out, *it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *MemoryQueue) ListFailed(_ context.Context) ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueItem
	for _, it := range q.items {
		if !it.Synced && it.Quarantined {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (q *MemoryQueue) MarkSynced(_ context.Context, localID string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.byID[localID]; ok && !it.Synced {
		it.Synced = true
		it.LastError = ""
		t := at
		it.SyncedAt = &t
	}
	return nil
}

func (q *MemoryQueue) IncrementRetry(_ context.Context, localID, lastErr string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.byID[localID]
	if !ok || it.Synced {
		return 0, fmt.Errorf("queue item %s not pending", localID)
	}
	it.RetryCount++
	it.LastError = lastErr
	return it.RetryCount, nil
}

func (q *MemoryQueue) Quarantine(_ context.Context, localID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if it, ok := q.byID[localID]; ok && !it.Synced {
		it.Quarantined = true
		it.LastError = reason
	}
	return nil
}

func (q *MemoryQueue) Clear(_ context.Context, localIDs ...string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	want := map[string]bool{}
	for _, id := range localIDs {
		want[id] = true
	}
	return q.removeLocked(func(it *QueueItem) bool {
		return it.Quarantined && !it.Synced && (len(want) == 0 || want[it.LocalID])
	}), nil
}

func (q *MemoryQueue) Prune(_ context.Context, syncedBefore time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(func(it *QueueItem) bool {
		return it.Synced && it.SyncedAt != nil && it.SyncedAt.Before(syncedBefore)
	}), nil
}

func (q *MemoryQueue) removeLocked(drop func(*QueueItem) bool) int {
	kept := q.items[:0]
	n := 0
	for _, it := range q.items {
		if drop(it) {
			delete(q.byID, it.LocalID)
			n++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	return n
}

func (q *MemoryQueue) RecordBatch(_ context.Context, b SyncBatch) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b.ID = int64(len(q.batches) + 1)
	q.batches = append(q.batches, b)
	return b.ID, nil
}

func (q *MemoryQueue) Batches(context.Context) ([]SyncBatch, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]SyncBatch(nil), q.batches...), nil
}

func (q *MemoryQueue) Stats(context.Context) (QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s QueueStats
	for _, it := range q.items {
		switch {
		case it.Synced:
			s.Synced++
		case it.Quarantined:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s, nil
}
