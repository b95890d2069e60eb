package httptransport

import (
	"context"
	"net/http"
	"strconv"

	appscoring "cageside/internal/app/scoring"
	"cageside/internal/domain"
	"cageside/internal/ws"

	"github.com/go-chi/chi/v5"
)

// ConnectionCounter reports live socket clients for a bout.
type ConnectionCounter interface {
	ConnectionCount(boutID string) int
}

type ScoringHandlers struct {
	scoring *appscoring.Service
	hub     ConnectionCounter
}

func NewScoringHandlers(svc *appscoring.Service, hub ConnectionCounter) *ScoringHandlers {
	return &ScoringHandlers{scoring: svc, hub: hub}
}

type roundRequest struct {
	BoutID      string `json:"bout_id"`
	RoundNumber int    `json:"round_number"`
}

type roundFunc func(ctx context.Context, boutID string, round int) (*domain.RoundResult, error)

func (h *ScoringHandlers) ComputeRound() http.HandlerFunc {
	return h.roundAction(h.scoring.ComputeRound)
}

// LockRound computes the round and queues round-level stat aggregation.
func (h *ScoringHandlers) LockRound() http.HandlerFunc {
	return h.roundAction(h.scoring.LockRound)
}

func (h *ScoringHandlers) roundAction(run roundFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricRoundComputeTotal.Add(1)
		var req roundRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteDomainError(w, err)
			return
		}
		res, err := run(r.Context(), req.BoutID, req.RoundNumber)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ScoringHandlers) GetRound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := strconv.Atoi(chi.URLParam(r, "round"))
		if err != nil || round < 1 {
			WriteDomainError(w, domain.Invalid("round_number", "must be a positive integer"))
			return
		}
		res, err := h.scoring.RoundResult(r.Context(), chi.URLParam(r, "bout_id"), round)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ScoringHandlers) FinalizeFight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricFightFinalizeTotal.Add(1)
		var req struct {
			BoutID     string `json:"bout_id"`
			Refinalize bool   `json:"refinalize"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			WriteDomainError(w, err)
			return
		}
		res, err := h.scoring.FinalizeFight(r.Context(), req.BoutID, req.Refinalize)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ScoringHandlers) GetFight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.scoring.FightResult(r.Context(), chi.URLParam(r, "bout_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// BoutState returns the same payload a socket client receives on connect.
func (h *ScoringHandlers) BoutState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boutID := chi.URLParam(r, "bout_id")
		round, err := optionalRound(r.URL.Query().Get("round_number"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		snap, err := h.scoring.State(r.Context(), boutID, round)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		count := 0
		if h.hub != nil {
			count = h.hub.ConnectionCount(boutID)
		}
		writeJSON(w, http.StatusOK, ws.StateSync{Type: ws.TypeStateSync, Data: snap, ConnectionCount: count})
	}
}
