// Package toolserver exposes the session lifecycle manager as MCP tools.
package toolserver

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sessiond-dev/sessiond/pkg/observability"
	"github.com/sessiond-dev/sessiond/pkg/session"
)

const (
	// Tool names
	toolStartSession     = "start_session"
	toolGetSessionStatus = "get_session_status"
	toolPauseSession     = "pause_session"
	toolResumeSession    = "resume_session"
	toolCompleteSession  = "complete_session"
	toolSessionStats     = "get_session_statistics"
	toolHealthCheck      = "health_check"
)

// Server wraps the mcp-go server with the session manager tools
type Server struct {
	server  *server.MCPServer
	manager *session.Manager
	limiter *rate.Limiter
}

// Config holds configuration for the MCP server
type Config struct {
	Name    string
	Version string
	// RateLimit is the sustained tool calls per second; 0 disables limiting.
	RateLimit float64
	// RateBurst is the limiter burst size.
	RateBurst int
}

// NewServer creates and configures a new MCP server around the session
// manager
func NewServer(cfg Config, manager *session.Manager) *Server {
	mcpServer := server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		server:  mcpServer,
		manager: manager,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.registerTools()
	return s
}

// traced wraps a tool handler in a span covering the whole call.
func (s *Server) traced(tool string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := observability.StartSpan(ctx, "tool."+tool,
			trace.WithAttributes(attribute.String("tool.name", tool)))
		defer span.End()

		start := time.Now()
		result, err := h(ctx, request)

		span.SetAttributes(
			attribute.Int64("tool.duration_ms", time.Since(start).Milliseconds()),
			attribute.Bool("tool.success", err == nil && (result == nil || !result.IsError)),
		)
		if err != nil {
			span.RecordError(err)
		}
		return result, err
	}
}

// registerTools registers all MCP tools with handlers
func (s *Server) registerTools() {
	startTool := mcp.NewTool(toolStartSession,
		mcp.WithDescription("Start a new session with specified type and configuration"),
		mcp.WithString("session_type",
			mcp.Description("Session type (default, api_workflow, file_processing, batch_operation, development, testing, maintenance)"),
		),
		mcp.WithObject("config",
			mcp.Description("Configuration overrides applied on top of the session type template"),
		),
	)
	s.server.AddTool(startTool, s.traced(toolStartSession, s.handleStartSession))

	statusTool := mcp.NewTool(toolGetSessionStatus,
		mcp.WithDescription("Get current session status and metrics; omit session_id for a summary of all sessions"),
		mcp.WithString("session_id",
			mcp.Description("Session identifier"),
		),
	)
	s.server.AddTool(statusTool, s.traced(toolGetSessionStatus, s.handleGetSessionStatus))

	pauseTool := mcp.NewTool(toolPauseSession,
		mcp.WithDescription("Pause an active session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	s.server.AddTool(pauseTool, s.traced(toolPauseSession, s.handlePauseSession))

	resumeTool := mcp.NewTool(toolResumeSession,
		mcp.WithDescription("Resume a paused session"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
	s.server.AddTool(resumeTool, s.traced(toolResumeSession, s.handleResumeSession))

	completeTool := mcp.NewTool(toolCompleteSession,
		mcp.WithDescription("Complete a session, tearing down its resources"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithObject("completion_data",
			mcp.Description("Data recorded with the completion operation"),
		),
	)
	s.server.AddTool(completeTool, s.traced(toolCompleteSession, s.handleCompleteSession))

	statsTool := mcp.NewTool(toolSessionStats,
		mcp.WithDescription("Get detailed session statistics"),
	)
	s.server.AddTool(statsTool, s.traced(toolSessionStats, s.handleSessionStatistics))

	healthTool := mcp.NewTool(toolHealthCheck,
		mcp.WithDescription("Check health of the session manager"),
	)
	s.server.AddTool(healthTool, s.traced(toolHealthCheck, s.handleHealthCheck))
}

// ServeStdio serves MCP over stdin/stdout, blocking until the stream closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}
