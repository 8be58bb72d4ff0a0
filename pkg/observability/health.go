package observability

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Health statuses reported by the checker.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Check is one registered health check. Failing a critical check makes the
// whole report unhealthy; failing a non-critical one only degrades it.
type Check struct {
	Name     string
	Run      func(context.Context) error
	Timeout  time.Duration
	Critical bool
}

// DetailFunc supplies a named detail section for the health report, such as
// the session manager's own health summary.
type DetailFunc func(context.Context) any

// HealthChecker aggregates registered checks and detail sections into one
// report.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []Check
	details map[string]DetailFunc
	started time.Time
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		details: make(map[string]DetailFunc),
		started: time.Now(),
	}
}

// Register adds a check. A zero timeout defaults to five seconds.
func (hc *HealthChecker) Register(check Check) {
	if check.Timeout == 0 {
		check.Timeout = 5 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks = append(hc.checks, check)
}

// RegisterDetail adds a named detail section to the report.
func (hc *HealthChecker) RegisterDetail(name string, fn DetailFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.details[name] = fn
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// RuntimeInfo is process-level context attached to every report.
type RuntimeInfo struct {
	Goroutines    int    `json:"goroutines"`
	MemAllocMB    uint64 `json:"mem_alloc_mb"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Report is the full health response.
type Report struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
	Details   map[string]any         `json:"details,omitempty"`
	Runtime   RuntimeInfo            `json:"runtime"`
}

// Check runs every registered check and assembles the report.
func (hc *HealthChecker) Check(ctx context.Context) Report {
	hc.mu.RLock()
	checks := make([]Check, len(hc.checks))
	copy(checks, hc.checks)
	details := make(map[string]DetailFunc, len(hc.details))
	for name, fn := range hc.details {
		details[name] = fn
	}
	started := hc.started
	hc.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for _, check := range checks {
		result := runCheck(ctx, check)
		report.Checks[check.Name] = result
		if result.Healthy {
			continue
		}
		if check.Critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	if len(details) > 0 {
		report.Details = make(map[string]any, len(details))
		for name, fn := range details {
			report.Details[name] = fn(ctx)
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	report.Runtime = RuntimeInfo{
		Goroutines:    runtime.NumGoroutine(),
		MemAllocMB:    mem.Alloc / 1024 / 1024,
		UptimeSeconds: int64(time.Since(started).Seconds()),
	}
	return report
}

// Healthy reports whether every critical check currently passes.
func (hc *HealthChecker) Healthy(ctx context.Context) bool {
	return hc.Check(ctx).Status != StatusUnhealthy
}

// runCheck runs one check under its timeout. The check function may outlive
// the timeout; the result then reports the deadline error.
func runCheck(ctx context.Context, check Check) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- check.Run(checkCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	result := CheckResult{
		Healthy:  err == nil,
		Duration: time.Since(start).String(),
	}
	if err != nil {
		result.Message = err.Error()
	}
	return result
}

// SessionManagerCheck builds the critical check backed by the session
// manager's own health report.
func SessionManagerCheck(run func(context.Context) error) Check {
	return Check{
		Name:     "session_manager",
		Run:      run,
		Timeout:  5 * time.Second,
		Critical: true,
	}
}

// SnapshotStoreCheck builds the check for snapshot store reachability.
// Non-critical: the manager keeps serving sessions when persistence is down.
func SnapshotStoreCheck(run func(context.Context) error) Check {
	return Check{
		Name:     "snapshot_store",
		Run:      run,
		Timeout:  5 * time.Second,
		Critical: false,
	}
}
