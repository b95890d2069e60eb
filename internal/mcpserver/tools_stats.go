package mcpserver

import (
	"context"

	"cageside/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerStatsTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_fight_stats",
			mcp.WithDescription("Aggregated statistics of one fighter across a bout"),
			mcp.WithString("bout_id", mcp.Required(), mcp.Description("Bout id")),
			mcp.WithString("subject_id", mcp.Required(), mcp.Description("Fighter id")),
		),
		s.handleGetFightStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_career_stats",
			mcp.WithDescription("Career statistics of a fighter over every finalized bout"),
			mcp.WithString("subject_id", mcp.Required(), mcp.Description("Fighter id")),
		),
		s.handleGetCareerStats,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_jobs",
			mcp.WithDescription("List stat aggregation jobs, newest first"),
			mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 500")),
			mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
		),
		s.handleListJobs,
	)
}

func (s *Server) handleGetFightStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boutID, err := request.RequireString("bout_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	subjectID, err := request.RequireString("subject_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	res, err := s.stats.FightStats(ctx, boutID, subjectID)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleGetCareerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := request.RequireString("subject_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	res, err := s.stats.CareerStats(ctx, subjectID)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleListJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, offset := clampPagination(request.GetInt("limit", defaultPageLimit), request.GetInt("offset", 0), maxPageLimit)
	items, err := s.jobs.ListJobs(ctx, limit, offset)
	if err != nil {
		return mapDomainError(err), nil
	}
	if items == nil {
		items = []domain.AggregationJob{}
	}
	return toolResult(map[string]any{"items": items, "limit": limit, "offset": offset}), nil
}
