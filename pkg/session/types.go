// Package session implements the session lifecycle manager: individual
// sessions with state machines and resource bookkeeping, named configuration
// templates, and a manager that owns the live-session collection and runs
// background expiry and monitoring jobs.
package session

import (
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusInitializing is the state between creation and resource allocation.
	StatusInitializing Status = "initializing"
	// StatusActive is the normal running state.
	StatusActive Status = "active"
	// StatusPaused is the suspended state; a paused session can be resumed.
	StatusPaused Status = "paused"
	// StatusCompleting is the transient state while teardown runs.
	StatusCompleting Status = "completing"
	// StatusCompleted is the terminal success state.
	StatusCompleted Status = "completed"
	// StatusFailed is the terminal failure state.
	StatusFailed Status = "failed"
	// StatusTimeout is the terminal state for sessions removed by the expiry sweep.
	StatusTimeout Status = "timeout"
)

// Terminal reports whether the status has no outgoing transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Well-known session types with built-in templates.
const (
	TypeDefault        = "default"
	TypeAPIWorkflow    = "api_workflow"
	TypeFileProcessing = "file_processing"
	TypeBatchOperation = "batch_operation"
	TypeDevelopment    = "development"
	TypeTesting        = "testing"
	TypeMaintenance    = "maintenance"
)

// Config holds the effective configuration of a session. It is resolved from
// a template plus caller overrides at creation time and immutable afterwards.
type Config struct {
	// SessionType is the logical category of the session.
	SessionType string `json:"session_type"`
	// TimeoutMinutes is the inactivity timeout before automatic expiry.
	TimeoutMinutes int `json:"timeout_minutes"`
	// MaxOperations is a soft cap; crossing it triggers a monitoring warning.
	MaxOperations int `json:"max_operations"`
	// AutoCleanup removes the session from the live collection shortly after
	// it reaches a terminal state.
	AutoCleanup bool `json:"auto_cleanup"`
	// PersistState writes a snapshot to the snapshot store at completion.
	PersistState bool `json:"persist_state"`
	// LogLevel is the per-session log level.
	LogLevel string `json:"log_level"`
	// ResourceLimits holds free-form per-type limits (e.g. max concurrent
	// API calls, max file size).
	ResourceLimits map[string]any `json:"resource_limits"`
	// CustomSettings is a free-form extension bag.
	CustomSettings map[string]any `json:"custom_settings"`
}

// clone returns a deep copy so template values are never shared between
// sessions.
func (c Config) clone() Config {
	out := c
	out.ResourceLimits = make(map[string]any, len(c.ResourceLimits))
	for k, v := range c.ResourceLimits {
		out.ResourceLimits[k] = v
	}
	out.CustomSettings = make(map[string]any, len(c.CustomSettings))
	for k, v := range c.CustomSettings {
		out.CustomSettings[k] = v
	}
	return out
}

// Metrics tracks per-session counters. All counters except
// ExecutionTimeSeconds are monotonic; ExecutionTimeSeconds reflects the
// current runtime and is frozen at completion.
type Metrics struct {
	OperationsCount      int     `json:"operations_count"`
	APICallsCount        int     `json:"api_calls_count"`
	FilesProcessed       int     `json:"files_processed"`
	ErrorsCount          int     `json:"errors_count"`
	WarningsCount        int     `json:"warnings_count"`
	BytesProcessed       int64   `json:"bytes_processed"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// Operation is one entry in a session's append-only operation history.
type Operation struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	// Sequence is the 1-based position in the history.
	Sequence int `json:"sequence"`
}

// ErrorRecord is one entry in a session's append-only error log.
type ErrorRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Sequence  int            `json:"sequence"`
}

// Snapshot is the JSON-serializable view of a session. It is both the
// query-single response shape and the document written to the snapshot store
// when persistence is enabled.
type Snapshot struct {
	SessionID          string     `json:"session_id"`
	SessionType        string     `json:"session_type"`
	Status             Status     `json:"status"`
	Config             Config     `json:"config"`
	Metrics            Metrics    `json:"metrics"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	LastActivity       time.Time  `json:"last_activity"`
	RuntimeDuration    float64    `json:"runtime_duration"`
	IsExpired          bool       `json:"is_expired"`
	OperationCount     int        `json:"operation_count"`
	ErrorCount         int        `json:"error_count"`
	AllocatedResources []string   `json:"allocated_resources"`
	StateKeys          []string   `json:"state_keys"`
}

// TransitionResult is returned by pause and resume operations.
type TransitionResult struct {
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletionSummary is returned by a successful completion.
type CompletionSummary struct {
	SessionID       string    `json:"session_id"`
	Status          Status    `json:"status"`
	DurationSeconds float64   `json:"duration_seconds"`
	OperationsCount int       `json:"operations_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// StatusSummary is the aggregate view over the live collection.
type StatusSummary struct {
	TotalSessions     int                  `json:"total_sessions"`
	ActiveSessions    int                  `json:"active_sessions"`
	CompletedSessions int                  `json:"completed_sessions"`
	FailedSessions    int                  `json:"failed_sessions"`
	SessionDetails    map[string]*Snapshot `json:"session_details"`
}

// Health reports the manager's own condition. Read-only and side-effect-free.
type Health struct {
	Status             string   `json:"status"`
	TotalSessions      int      `json:"total_sessions"`
	ActiveSessions     int      `json:"active_sessions"`
	SessionLimit       int      `json:"session_limit"`
	UtilizationPercent float64  `json:"utilization_percent"`
	TotalCreated       int      `json:"total_created"`
	TotalCompleted     int      `json:"total_completed"`
	TotalFailed        int      `json:"total_failed"`
	CleanupTaskRunning bool     `json:"cleanup_task_running"`
	MonitorTaskRunning bool     `json:"monitoring_task_running"`
	AvailableTemplates []string `json:"available_templates"`
}

// Statistics is a detailed breakdown of the live collection plus lifetime
// counters.
type Statistics struct {
	TotalSessions    int                `json:"total_sessions"`
	SessionsByType   map[string]int     `json:"sessions_by_type"`
	SessionsByStatus map[Status]int     `json:"sessions_by_status"`
	TotalOperations  int                `json:"total_operations"`
	TotalErrors      int                `json:"total_errors"`
	AverageRuntime   float64            `json:"average_runtime"`
	Lifetime         LifetimeStatistics `json:"lifetime_stats"`
}

// LifetimeStatistics tracks counters across the manager's whole lifetime.
type LifetimeStatistics struct {
	TotalCreated   int     `json:"total_created"`
	TotalCompleted int     `json:"total_completed"`
	TotalFailed    int     `json:"total_failed"`
	SuccessRate    float64 `json:"success_rate"`
}
