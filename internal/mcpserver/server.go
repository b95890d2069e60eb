package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	appscoring "cageside/internal/app/scoring"
	"cageside/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Scoring interface {
	State(ctx context.Context, boutID string, roundFilter int) (*appscoring.StateSnapshot, error)
	ListEvents(ctx context.Context, boutID string, round int) ([]domain.Event, error)
	RoundResult(ctx context.Context, boutID string, round int) (*domain.RoundResult, error)
}

type Stats interface {
	FightStats(ctx context.Context, boutID, subjectID string) (*domain.FightStats, error)
	CareerStats(ctx context.Context, subjectID string) (*domain.CareerStats, error)
}

type Jobs interface {
	ListJobs(ctx context.Context, limit, offset int) ([]domain.AggregationJob, error)
}

type Deps struct {
	Scoring Scoring
	Stats   Stats
	Jobs    Jobs
	Version string
}

// Server exposes read-only bout, stats and job views over streamable HTTP.
type Server struct {
	scoring Scoring
	stats   Stats
	jobs    Jobs

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(d Deps) *Server {
	version := d.Version
	if version == "" {
		version = "0.1.0"
	}
	mcpSrv := server.NewMCPServer(
		"cageside",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		scoring:    d.Scoring,
		stats:      d.Stats,
		jobs:       d.Jobs,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerScoringTools()
	s.registerStatsTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"bout://{bout_id}/state",
			"bout_state",
			mcp.WithTemplateDescription("Current scoreboard snapshot for a bout"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			boutID, ok := parseBoutStateURI(raw)
			if !ok {
				return nil, domain.Invalid("uri", "expected bout://{bout_id}/state")
			}
			snap, err := s.scoring.State(ctx, boutID, 0)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}

func parseBoutStateURI(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "bout://") || !strings.HasSuffix(raw, "/state") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(raw, "bout://"), "/state")
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
