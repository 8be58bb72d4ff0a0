// Package observability provides Prometheus metrics, health checks, and the
// HTTP server that exposes them.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session lifecycle metrics
	sessionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_created_total",
			Help: "Total number of sessions created",
		},
		[]string{"session_type"},
	)

	sessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_completed_total",
			Help: "Total number of sessions completed",
		},
		[]string{"session_type"},
	)

	sessionsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_failed_total",
			Help: "Total number of sessions that failed",
		},
		[]string{"session_type"},
	)

	sessionsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_sessions_expired_total",
			Help: "Total number of sessions removed by the expiry sweep",
		},
		[]string{"session_type"},
	)

	sessionRuntimeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_session_runtime_seconds",
			Help:    "Session runtime from start to completion in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"session_type"},
	)

	operationLimitWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_operation_limit_warnings_total",
			Help: "Total number of operation-cap warnings emitted by the monitor",
		},
		[]string{"session_type"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_active_sessions",
			Help: "Number of initializing or active sessions",
		},
	)

	// Tool surface metrics
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_tool_call_duration_seconds",
			Help:    "MCP tool call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default Prometheus registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sessionsCreatedTotal,
			sessionsCompletedTotal,
			sessionsFailedTotal,
			sessionsExpiredTotal,
			sessionRuntimeSeconds,
			operationLimitWarningsTotal,
			activeSessions,
			toolCallsTotal,
			toolCallDuration,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionCreated records a session creation
func RecordSessionCreated(sessionType string) {
	sessionsCreatedTotal.WithLabelValues(sessionType).Inc()
}

// RecordSessionCompleted records a successful session completion
func RecordSessionCompleted(sessionType string) {
	sessionsCompletedTotal.WithLabelValues(sessionType).Inc()
}

// RecordSessionFailed records a session failure
func RecordSessionFailed(sessionType string) {
	sessionsFailedTotal.WithLabelValues(sessionType).Inc()
}

// RecordSessionExpired records a session removed by the expiry sweep
func RecordSessionExpired(sessionType string) {
	sessionsExpiredTotal.WithLabelValues(sessionType).Inc()
}

// ObserveSessionRuntime records the final runtime of a completed session
func ObserveSessionRuntime(sessionType string, seconds float64) {
	sessionRuntimeSeconds.WithLabelValues(sessionType).Observe(seconds)
}

// RecordOperationLimitWarning records an operation-cap warning
func RecordOperationLimitWarning(sessionType string) {
	operationLimitWarningsTotal.WithLabelValues(sessionType).Inc()
}

// SetActiveSessions sets the active sessions gauge
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordToolCall records MCP tool call metrics
func RecordToolCall(tool, status string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}
