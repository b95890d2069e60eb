package httptransport

import (
	"net/http"
	"strconv"

	"cageside/internal/domain"
	"cageside/internal/jobs"
	"cageside/internal/stats"

	"github.com/go-chi/chi/v5"
)

type StatsHandlers struct {
	pipeline  *stats.Pipeline
	scheduler *jobs.Scheduler
}

func NewStatsHandlers(p *stats.Pipeline, s *jobs.Scheduler) *StatsHandlers {
	return &StatsHandlers{pipeline: p, scheduler: s}
}

func (h *StatsHandlers) RoundStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		round, err := strconv.Atoi(chi.URLParam(r, "round"))
		if err != nil || round < 1 {
			WriteDomainError(w, domain.Invalid("round_number", "must be a positive integer"))
			return
		}
		res, err := h.pipeline.RoundStats(r.Context(), chi.URLParam(r, "bout_id"), round, chi.URLParam(r, "subject_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *StatsHandlers) FightStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.pipeline.FightStats(r.Context(), chi.URLParam(r, "bout_id"), chi.URLParam(r, "subject_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *StatsHandlers) CareerStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.pipeline.CareerStats(r.Context(), chi.URLParam(r, "subject_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Manual runs the requested aggregation synchronously and returns the jobs
// it recorded.
func (h *StatsHandlers) Manual() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricJobTriggerTotal.Add(1)
		var req jobs.ManualRequest
		if err := decodeJSON(w, r, &req); err != nil {
			metricJobTriggerErrors.Add(1)
			WriteDomainError(w, err)
			return
		}
		items, err := h.scheduler.Manual(r.Context(), req)
		if err != nil {
			metricJobTriggerErrors.Add(1)
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": items})
	}
}

func (h *StatsHandlers) RoundLocked() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roundRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteDomainError(w, err)
			return
		}
		h.accepted(w, h.scheduler.TriggerRoundLocked(r.Context(), req.BoutID, req.RoundNumber), domain.TriggerRoundLocked)
	}
}

func (h *StatsHandlers) PostFight() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BoutID string `json:"bout_id"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			WriteDomainError(w, err)
			return
		}
		h.accepted(w, h.scheduler.TriggerPostFight(r.Context(), req.BoutID), domain.TriggerPostFight)
	}
}

func (h *StatsHandlers) Nightly() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.accepted(w, h.scheduler.TriggerNightly(r.Context()), domain.TriggerNightly)
	}
}

func (h *StatsHandlers) accepted(w http.ResponseWriter, err error, trigger domain.JobTrigger) {
	metricJobTriggerTotal.Add(1)
	if err != nil {
		metricJobTriggerErrors.Add(1)
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "trigger": trigger})
}

func (h *StatsHandlers) ListJobs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		items, err := h.scheduler.ListJobs(r.Context(), limit, offset)
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		if items == nil {
			items = []domain.AggregationJob{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *StatsHandlers) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.scheduler.GetJob(r.Context(), chi.URLParam(r, "job_id"))
		if err != nil {
			WriteDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
