package spectatorgateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"cageside/internal/app/scoring"
	"cageside/internal/domain"
)

type StateProvider interface {
	State(ctx context.Context, boutID string, roundFilter int) (*scoring.StateSnapshot, error)
}

// StateHandler serves GET /spectate/state?bout_id=…&round_number=….
func StateHandler(state StateProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boutID := r.URL.Query().Get("bout_id")
		if boutID == "" {
			writeError(w, http.StatusBadRequest, "bout_id_required")
			return
		}
		round := 0
		if v := r.URL.Query().Get("round_number"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_round_number")
				return
			}
			round = n
		}
		snap, err := state.State(r.Context(), boutID, round)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "bout_not_found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}
