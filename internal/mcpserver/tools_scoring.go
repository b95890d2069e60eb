package mcpserver

import (
	"context"

	"cageside/internal/domain"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerScoringTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_bout_state",
			mcp.WithDescription("Scoreboard snapshot for a bout: totals per round and the final result once finalized"),
			mcp.WithString("bout_id", mcp.Required(), mcp.Description("Bout id")),
			mcp.WithNumber("round_number", mcp.Description("Only include this round, default all")),
		),
		s.handleGetBoutState,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_events",
			mcp.WithDescription("List judging events of a bout in arrival order"),
			mcp.WithString("bout_id", mcp.Required(), mcp.Description("Bout id")),
			mcp.WithNumber("round_number", mcp.Description("Only include this round, default all")),
		),
		s.handleListEvents,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_round_result",
			mcp.WithDescription("Last computed 10-point-must result of a round"),
			mcp.WithString("bout_id", mcp.Required(), mcp.Description("Bout id")),
			mcp.WithNumber("round_number", mcp.Required(), mcp.Description("Round number, starting at 1")),
		),
		s.handleGetRoundResult,
	)
}

func (s *Server) handleGetBoutState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boutID, err := request.RequireString("bout_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	snap, err := s.scoring.State(ctx, boutID, request.GetInt("round_number", 0))
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(snap), nil
}

func (s *Server) handleListEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boutID, err := request.RequireString("bout_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	round := request.GetInt("round_number", 0)
	if round < 0 {
		return toolError("invalid_request", "round_number must not be negative"), nil
	}
	items, err := s.scoring.ListEvents(ctx, boutID, round)
	if err != nil {
		return mapDomainError(err), nil
	}
	if items == nil {
		items = []domain.Event{}
	}
	return toolResult(map[string]any{"bout_id": boutID, "items": items}), nil
}

func (s *Server) handleGetRoundResult(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	boutID, err := request.RequireString("bout_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	round, err := request.RequireInt("round_number")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	if round < 1 {
		return toolError("invalid_request", "round_number must be positive"), nil
	}
	res, err := s.scoring.RoundResult(ctx, boutID, round)
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(res), nil
}
