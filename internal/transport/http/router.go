package httptransport

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"

	appscoring "cageside/internal/app/scoring"
	"cageside/internal/eventbus"
	"cageside/internal/ingest"
	"cageside/internal/jobs"
	"cageside/internal/spectatorgateway"
	"cageside/internal/stats"
	"cageside/internal/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Deps are the services the router exposes. Hub and MCP may be nil.
type Deps struct {
	Store       Pinger
	Bouts       spectatorgateway.BoutLookup
	Gateway     *ingest.Gateway
	Scoring     *appscoring.Service
	Stats       *stats.Pipeline
	Jobs        *jobs.Scheduler
	Bus         *eventbus.Bus
	Hub         *ws.Server
	MCP         http.Handler
	CORSOrigins []string
}

func NewRouter(d Deps) *chi.Mux {
	var hub ConnectionCounter
	if d.Hub != nil {
		hub = d.Hub
	}
	eventHandlers := NewEventHandlers(d.Gateway, d.Scoring)
	scoringHandlers := NewScoringHandlers(d.Scoring, hub)
	statsHandlers := NewStatsHandlers(d.Stats, d.Jobs)
	adminHandlers := NewAdminHandlers(d.Store)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware(d.CORSOrigins))

	r.With(APILogMiddleware()).Get("/healthz", adminHandlers.Health())
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/vars", expvar.Handler().ServeHTTP)

	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}
	if d.Hub != nil {
		r.Get("/ws", d.Hub.HandleWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(APILogMiddleware())

		r.Post("/events", eventHandlers.Submit())
		r.Get("/events", eventHandlers.List())

		r.Post("/rounds/compute", scoringHandlers.ComputeRound())
		r.Post("/rounds/lock", scoringHandlers.LockRound())
		r.Get("/rounds/{bout_id}/{round}", scoringHandlers.GetRound())
		r.Post("/fights/finalize", scoringHandlers.FinalizeFight())
		r.Get("/fights/{bout_id}", scoringHandlers.GetFight())
		r.Get("/bouts/{bout_id}/state", scoringHandlers.BoutState())

		r.Get("/stats/round/{bout_id}/{round}/{subject_id}", statsHandlers.RoundStats())
		r.Get("/stats/fight/{bout_id}/{subject_id}", statsHandlers.FightStats())
		r.Get("/stats/career/{subject_id}", statsHandlers.CareerStats())
		r.Get("/stats/jobs", statsHandlers.ListJobs())
		r.Get("/stats/jobs/{job_id}", statsHandlers.GetJob())
		capture := r.With(BodyCaptureMiddleware(4096))
		capture.Post("/stats/jobs/manual", statsHandlers.Manual())
		capture.Post("/stats/jobs/round-locked", statsHandlers.RoundLocked())
		capture.Post("/stats/jobs/post-fight", statsHandlers.PostFight())
		capture.Post("/stats/jobs/nightly", statsHandlers.Nightly())

		if d.Bus != nil {
			r.Get("/spectate/events", spectatorgateway.EventsHandler(d.Bus, d.Bouts))
		}
		r.Get("/spectate/state", spectatorgateway.StateHandler(d.Scoring))
	})
	return r
}

// corsMiddleware lets browser scoreboards on other origins read the API.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Last-Event-ID", "Mcp-Session-Id"},
		AllowCredentials: false,
	}).Handler
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 64)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
