package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/roguectrl/electricsheep/internal/budget"
	"github.com/roguectrl/electricsheep/internal/dream"
)

func (s *Server) handleRemember(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := req.RequireString("summary")
	if err != nil || summary == "" {
		return mcp.NewToolResultError("missing required parameter: summary"), nil
	}
	category := req.GetString("category", "")

	var full map[string]any
	if raw := req.GetString("context", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &full); err != nil || full == nil {
			return mcp.NewToolResultError("context must be a JSON object"), nil
		}
	}

	res, err := s.app.Remember(summary, full, category)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remember: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"stored":     true,
		"deep_id":    res.DeepID,
		"category":   res.Entry.Category,
		"deep_stats": res.Stats,
	})
}

func (s *Server) handleMemoryStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.app.Deep.Stats()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read stats: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"deep_memory":            stats,
		"working_memory_entries": len(s.app.Working.Load()),
	})
}

func (s *Server) handleWorkingMemory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.app.WorkingContext(req.GetString("category", ""))), nil
}

func (s *Server) handleBudgetStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.app.Budget())
}

func (s *Server) handleDreamCycle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.app.Dreamer.Run(ctx)
	if err != nil {
		var exceeded *budget.ExceededError
		switch {
		case errors.As(err, &exceeded):
			return mcp.NewToolResultError(exceeded.Error()), nil
		case errors.Is(err, dream.ErrNoGenerator):
			return mcp.NewToolResultError("dreaming is disabled: no generation provider is configured"), nil
		case errors.Is(err, dream.ErrCycleRunning):
			return mcp.NewToolResultError("a dream cycle is already running"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("dream cycle failed: %v", err)), nil
	}
	if res.Outcome == dream.OutcomeNoop {
		return mcp.NewToolResultText("No undreamed memories. A dreamless night."), nil
	}
	return jsonResult(res)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
