// Package spectatorgateway mirrors bout notifications to read-only
// spectators over server-sent events.
package spectatorgateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cageside/internal/domain"
	"cageside/internal/eventbus"
)

var pingInterval = 15 * time.Second

type BoutLookup interface {
	GetBout(ctx context.Context, id string) (*domain.Bout, error)
}

// EventsHandler streams GET /spectate/events?bout_id=…. A Last-Event-ID
// header replays what the bus still holds after that id.
func EventsHandler(bus *eventbus.Bus, bouts BoutLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boutID := r.URL.Query().Get("bout_id")
		if boutID == "" {
			writeError(w, http.StatusBadRequest, "bout_id_required")
			return
		}
		if _, err := bouts.GetBout(r.Context(), boutID); err != nil {
			writeError(w, http.StatusNotFound, "bout_not_found")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var lastID int64
		if v := r.Header.Get("Last-Event-ID"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				lastID = n
			}
		}

		pred := eventbus.ForBout(boutID, nil)
		sub := bus.Subscribe(pred)
		defer sub.Close()
		metricSpectatorSSEConnectionsTotal.Add(1)
		metricSpectatorSSEConnectionsActive.Add(1)
		defer metricSpectatorSSEConnectionsActive.Add(-1)

		eventbus.SetSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		if lastID > 0 {
			for _, n := range bus.ReplayAfter(lastID, pred) {
				if err := eventbus.WriteSSE(w, n); err != nil {
					return
				}
				lastID = n.ID
			}
		}
		flusher.Flush()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case n, ok := <-sub.C():
				if !ok {
					return
				}
				if n.ID <= lastID {
					continue
				}
				if err := eventbus.WriteSSE(w, n); err != nil {
					return
				}
				flusher.Flush()
			case <-ticker.C:
				ping := eventbus.Notification{
					Kind:   "ping",
					BoutID: boutID,
					At:     time.Now().UTC(),
					Data:   map[string]any{"ts": time.Now().UnixMilli()},
				}
				if err := eventbus.WriteSSE(w, ping); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
