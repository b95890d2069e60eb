package httptransport

import (
	"net/http"
	"strconv"

	appscoring "cageside/internal/app/scoring"
	"cageside/internal/domain"
	"cageside/internal/ingest"
)

type EventHandlers struct {
	gateway *ingest.Gateway
	scoring *appscoring.Service
}

func NewEventHandlers(gw *ingest.Gateway, svc *appscoring.Service) *EventHandlers {
	return &EventHandlers{gateway: gw, scoring: svc}
}

// Submit answers 201 for a new event and 200 when the idempotency key was
// already seen.
func (h *EventHandlers) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricEventSubmitTotal.Add(1)
		var req ingest.SubmitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			metricEventSubmitErrors.Add(1)
			WriteDomainError(w, err)
			return
		}
		res, err := h.gateway.Submit(r.Context(), req)
		if err != nil {
			metricEventSubmitErrors.Add(1)
			WriteDomainError(w, err)
			return
		}
		status := http.StatusCreated
		if res.Duplicate {
			metricEventSubmitDuplicate.Add(1)
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

func (h *EventHandlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boutID := r.URL.Query().Get("bout_id")
		if boutID == "" {
			WriteDomainError(w, domain.Invalid("bout_id", "required"))
			return
		}
		round, err := optionalRound(r.URL.Query().Get("round_number"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		items, err := h.scoring.ListEvents(r.Context(), boutID, round)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if items == nil {
			items = []domain.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "bout_id": boutID, "round_number": round})
	}
}

// optionalRound parses a round filter; empty means every round.
func optionalRound(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, domain.Invalid("round_number", "must be a positive integer")
	}
	return n, nil
}
