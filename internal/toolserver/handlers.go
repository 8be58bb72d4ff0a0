package toolserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sessiond-dev/sessiond/pkg/observability"
)

// allow applies the shared rate limit to a tool call.
func (s *Server) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// result marshals v as indented JSON and records tool metrics.
func result(tool string, start time.Time, v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		observability.RecordToolCall(tool, "error", time.Since(start))
		return mcp.NewToolResultError(err.Error()), nil
	}
	observability.RecordToolCall(tool, "ok", time.Since(start))
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(tool string, start time.Time, err error) (*mcp.CallToolResult, error) {
	observability.RecordToolCall(tool, "error", time.Since(start))
	return mcp.NewToolResultError(err.Error()), nil
}

func rateLimited(tool string) (*mcp.CallToolResult, error) {
	observability.RecordToolCall(tool, "rate_limited", 0)
	return mcp.NewToolResultError("rate limit exceeded"), nil
}

// handleStartSession implements the start_session tool
func (s *Server) handleStartSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolStartSession)
	}
	start := time.Now()

	sessionType := request.GetString("session_type", "default")

	var overrides map[string]any
	if raw, ok := request.GetArguments()["config"]; ok {
		if m, ok := raw.(map[string]any); ok {
			overrides = m
		}
	}

	sessionID, err := s.manager.StartSession(ctx, sessionType, overrides)
	if err != nil {
		return toolError(toolStartSession, start, err)
	}

	return result(toolStartSession, start, map[string]any{
		"session_id":   sessionID,
		"session_type": sessionType,
		"status":       "started",
	})
}

// handleGetSessionStatus implements the get_session_status tool
func (s *Server) handleGetSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolGetSessionStatus)
	}
	start := time.Now()

	sessionID := request.GetString("session_id", "")
	if sessionID == "" {
		return result(toolGetSessionStatus, start, s.manager.AggregateStatus())
	}

	snap, err := s.manager.GetSessionStatus(sessionID)
	if err != nil {
		return toolError(toolGetSessionStatus, start, err)
	}
	return result(toolGetSessionStatus, start, snap)
}

// handlePauseSession implements the pause_session tool
func (s *Server) handlePauseSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolPauseSession)
	}
	start := time.Now()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(toolPauseSession, start, err)
	}

	res, err := s.manager.PauseSession(sessionID)
	if err != nil {
		return toolError(toolPauseSession, start, err)
	}
	return result(toolPauseSession, start, res)
}

// handleResumeSession implements the resume_session tool
func (s *Server) handleResumeSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolResumeSession)
	}
	start := time.Now()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(toolResumeSession, start, err)
	}

	res, err := s.manager.ResumeSession(sessionID)
	if err != nil {
		return toolError(toolResumeSession, start, err)
	}
	return result(toolResumeSession, start, res)
}

// handleCompleteSession implements the complete_session tool
func (s *Server) handleCompleteSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolCompleteSession)
	}
	start := time.Now()

	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return toolError(toolCompleteSession, start, err)
	}

	var completionData map[string]any
	if raw, ok := request.GetArguments()["completion_data"]; ok {
		if m, ok := raw.(map[string]any); ok {
			completionData = m
		}
	}

	summary, err := s.manager.CompleteSession(ctx, sessionID, completionData)
	if err != nil {
		return toolError(toolCompleteSession, start, err)
	}
	return result(toolCompleteSession, start, summary)
}

// handleSessionStatistics implements the get_session_statistics tool
func (s *Server) handleSessionStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolSessionStats)
	}
	start := time.Now()
	return result(toolSessionStats, start, s.manager.Statistics())
}

// handleHealthCheck implements the health_check tool
func (s *Server) handleHealthCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.allow() {
		return rateLimited(toolHealthCheck)
	}
	start := time.Now()
	return result(toolHealthCheck, start, s.manager.Health())
}
