package platforms

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// panelRegistry remembers which message id holds each scorecard panel so
// later updates edit it instead of posting a new message.
type panelRegistry struct {
	mu  sync.Mutex
	ids map[string]string
}

func newPanelRegistry() *panelRegistry {
	return &panelRegistry{ids: map[string]string{}}
}

func panelID(endpoint, panelKey string) string {
	return strings.TrimSpace(endpoint) + "|" + strings.TrimSpace(panelKey)
}

func (r *panelRegistry) get(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ids[key]
}

func (r *panelRegistry) set(key, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[key] = id
}

func (r *panelRegistry) forget(endpoint, panelKey string) {
	key := panelID(endpoint, panelKey)
	if key == "|" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, key)
}

type panelOps struct {
	create func(ctx context.Context) (string, error)
	edit   func(ctx context.Context, msgID string) (status int, err error)
}

// upsert creates the panel on first use and edits it afterwards. An edit
// that returns 404 recreates the panel.
func (r *panelRegistry) upsert(ctx context.Context, key string, ops panelOps) error {
	if id := r.get(key); id != "" {
		status, err := ops.edit(ctx, id)
		if err == nil {
			return nil
		}
		if status != http.StatusNotFound {
			return err
		}
	}
	id, err := ops.create(ctx)
	if err != nil {
		return err
	}
	r.set(key, id)
	return nil
}
