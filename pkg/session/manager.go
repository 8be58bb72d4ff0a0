package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sessiond-dev/sessiond/pkg/observability"
)

// Default manager settings.
const (
	DefaultMaxConcurrentSessions = 100
	DefaultCleanupInterval       = 10 * time.Minute
	DefaultMonitorInterval       = 60 * time.Second
	DefaultCleanupGraceDelay     = time.Second
)

// Options configures a Manager.
type Options struct {
	// MaxConcurrentSessions is the live-collection concurrency ceiling.
	MaxConcurrentSessions int
	// CleanupInterval is how often the expiry sweep runs.
	CleanupInterval time.Duration
	// MonitorInterval is how often the metrics/limit monitor runs.
	MonitorInterval time.Duration
	// CleanupGraceDelay is the delay between completion and removal for
	// auto-cleanup sessions.
	CleanupGraceDelay time.Duration
	// Store receives terminal-state snapshots for sessions with
	// persist_state enabled. Optional; nil disables persistence.
	Store SnapshotStore
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrentSessions <= 0 {
		o.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = DefaultCleanupInterval
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = DefaultMonitorInterval
	}
	if o.CleanupGraceDelay <= 0 {
		o.CleanupGraceDelay = DefaultCleanupGraceDelay
	}
}

// Manager is the sole owner of the live-session collection and the arbiter
// of all state transitions. It hosts two background jobs: the expiry sweep
// and the metrics/limit monitor. Manager is safe for concurrent use.
type Manager struct {
	opts       Options
	templates  *TemplateRegistry
	allocators *allocatorTable
	store      SnapshotStore

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	running  bool

	totalCreated   int
	totalCompleted int
	totalFailed    int

	cron     *cron.Cron
	done     chan struct{}
	removeWG sync.WaitGroup
}

// NewManager creates a manager. Background jobs do not run until Start is
// called.
func NewManager(opts Options) *Manager {
	opts.applyDefaults()
	return &Manager{
		opts:       opts,
		templates:  NewTemplateRegistry(),
		allocators: newAllocatorTable(),
		store:      opts.Store,
		sessions:   make(map[string]*Session),
		done:       make(chan struct{}),
	}
}

// Templates returns the manager's template registry for custom
// registrations.
func (m *Manager) Templates() *TemplateRegistry {
	return m.templates
}

// RegisterAllocator installs a resource allocator for a session type,
// replacing any previous registration.
func (m *Manager) RegisterAllocator(sessionType string, fn func(*Session) error) {
	m.allocators.register(sessionType, fn)
}

// Start lists persisted snapshots (best-effort, audit only) and starts the
// background jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.running {
		return nil
	}

	m.loadPersistedSnapshots(ctx)

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.opts.CleanupInterval), m.sweepExpired); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.opts.MonitorInterval), m.monitor); err != nil {
		return fmt.Errorf("schedule session monitor: %w", err)
	}
	c.Start()

	m.cron = c
	m.running = true
	log.Printf("session manager started (limit %d, sweep %s, monitor %s)",
		m.opts.MaxConcurrentSessions, m.opts.CleanupInterval, m.opts.MonitorInterval)
	return nil
}

// loadPersistedSnapshots surfaces non-terminal snapshots left by a previous
// run. Snapshots are audit history only; live sessions are never
// reconstructed from them, so in-memory-only state (connections, resource
// handles) is not restored.
func (m *Manager) loadPersistedSnapshots(ctx context.Context) {
	if m.store == nil {
		return
	}
	snaps, err := m.store.List(ctx)
	if err != nil {
		log.Printf("failed to list persisted snapshots: %v", err)
		return
	}
	found := 0
	for _, snap := range snaps {
		if snap.Status == StatusActive || snap.Status == StatusPaused {
			found++
			log.Printf("found persisted snapshot for %s session %s (status %s)",
				snap.SessionType, snap.SessionID, snap.Status)
		}
	}
	if found > 0 {
		log.Printf("found %d non-terminal persisted snapshots; kept as audit history", found)
	}
}

// StartSession creates a session of the given type, applying overrides on
// top of the type's template, allocates its resources, and activates it.
// It fails with a CapacityError when the live collection is full, and with
// an AllocationError when type-specific setup fails; a failed allocation
// leaves no half-initialized session behind.
func (m *Manager) StartSession(ctx context.Context, sessionType string, overrides map[string]any) (string, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}
	if len(m.sessions) >= m.opts.MaxConcurrentSessions {
		m.mu.Unlock()
		return "", &CapacityError{Limit: m.opts.MaxConcurrentSessions}
	}

	id := uuid.NewString()
	cfg := m.templates.Resolve(sessionType, overrides)
	s := newSession(id, sessionType, cfg)
	m.sessions[id] = s
	m.totalCreated++
	m.mu.Unlock()

	if err := m.allocators.allocate(s); err != nil {
		m.removeSession(id)
		return "", &AllocationError{SessionID: id, SessionType: sessionType, Err: err}
	}

	s.setStatus(StatusActive)
	s.AddOperation("session_start", map[string]any{"session_type": sessionType})

	observability.RecordSessionCreated(sessionType)
	m.updateActiveGauge()
	log.Printf("session %s started with type %s", id, sessionType)
	return id, nil
}

// Get returns the live session for an ID so callers can record operations
// and errors against it.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetSessionStatus returns the full snapshot for one session. Read-only; it
// never touches session activity.
func (m *Manager) GetSessionStatus(sessionID string) (*Snapshot, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// AggregateStatus returns counts plus the per-session snapshot map for the
// whole live collection. Read-only.
func (m *Manager) AggregateStatus() *StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := &StatusSummary{
		TotalSessions:  len(m.sessions),
		SessionDetails: make(map[string]*Snapshot, len(m.sessions)),
	}
	for id, s := range m.sessions {
		snap := s.Snapshot()
		summary.SessionDetails[id] = snap
		switch snap.Status {
		case StatusActive:
			summary.ActiveSessions++
		case StatusCompleted:
			summary.CompletedSessions++
		case StatusFailed:
			summary.FailedSessions++
		}
	}
	return summary
}

// PauseSession pauses an active session.
func (m *Manager) PauseSession(sessionID string) (*TransitionResult, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.transition("pause", StatusPaused, StatusActive); err != nil {
		return nil, err
	}
	s.AddOperation("session_pause", nil)
	log.Printf("session %s paused", sessionID)
	return &TransitionResult{SessionID: sessionID, Status: StatusPaused, Timestamp: time.Now()}, nil
}

// ResumeSession resumes a paused session.
func (m *Manager) ResumeSession(sessionID string) (*TransitionResult, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.transition("resume", StatusActive, StatusPaused); err != nil {
		return nil, err
	}
	s.AddOperation("session_resume", nil)
	log.Printf("session %s resumed", sessionID)
	return &TransitionResult{SessionID: sessionID, Status: StatusActive, Timestamp: time.Now()}, nil
}

// CompleteSession drives a non-terminal session through completing to
// completed: resource teardown, runtime freeze, optional snapshot
// persistence, and (for auto-cleanup sessions) removal after a grace delay.
// If anything fails after the session enters completing, the session is
// forced to failed, the error is recorded, and the error is returned, so
// completion failures are never silent.
func (m *Manager) CompleteSession(ctx context.Context, sessionID string, completionData map[string]any) (*CompletionSummary, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.transition("complete", StatusCompleting, StatusInitializing, StatusActive, StatusPaused); err != nil {
		return nil, err
	}

	summary, err := m.finishCompletion(ctx, s, completionData)
	if err != nil {
		s.setStatus(StatusFailed)
		s.AddError("completion_error", err.Error(), nil)
		m.mu.Lock()
		m.totalFailed++
		m.mu.Unlock()
		observability.RecordSessionFailed(s.Type)
		m.updateActiveGauge()
		log.Printf("failed to complete session %s: %v", sessionID, err)
		return nil, err
	}
	return summary, nil
}

func (m *Manager) finishCompletion(ctx context.Context, s *Session, completionData map[string]any) (*CompletionSummary, error) {
	s.AddOperation("session_complete", completionData)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Connection and temp-file failures are logged per resource and never
	// abort teardown.
	s.releaseResources()

	s.setStatus(StatusCompleted)
	s.freezeRuntime()

	m.mu.Lock()
	m.totalCompleted++
	m.mu.Unlock()

	metrics := s.Metrics()
	observability.RecordSessionCompleted(s.Type)
	observability.ObserveSessionRuntime(s.Type, metrics.ExecutionTimeSeconds)
	m.updateActiveGauge()

	if s.Config.PersistState && m.store != nil {
		if err := m.store.Save(ctx, s.Snapshot()); err != nil {
			log.Printf("%v", &PersistenceError{SessionID: s.ID, Err: err})
		}
	}

	if s.Config.AutoCleanup {
		m.scheduleRemoval(s.ID)
	}

	log.Printf("session %s completed in %.2fs (%d operations)",
		s.ID, metrics.ExecutionTimeSeconds, metrics.OperationsCount)

	return &CompletionSummary{
		SessionID:       s.ID,
		Status:          StatusCompleted,
		DurationSeconds: metrics.ExecutionTimeSeconds,
		OperationsCount: metrics.OperationsCount,
		Timestamp:       time.Now(),
	}, nil
}

// scheduleRemoval removes the session after the grace delay. Shutdown skips
// the wait.
func (m *Manager) scheduleRemoval(sessionID string) {
	m.removeWG.Add(1)
	go func() {
		defer m.removeWG.Done()
		select {
		case <-time.After(m.opts.CleanupGraceDelay):
		case <-m.done:
		}
		m.removeSession(sessionID)
	}()
}

func (m *Manager) removeSession(sessionID string) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if ok {
		m.updateActiveGauge()
		log.Printf("removed session %s from live collection", sessionID)
	}
}

// sweepExpired is the expiry-sweep job body. Each expired session is forced
// to timeout, torn down, and removed unconditionally (timeout bypasses
// auto_cleanup). Only active and paused sessions can expire: a session
// already completing belongs to its completion call, and per-session
// failures are isolated so one bad session never aborts the sweep for the
// rest.
func (m *Manager) sweepExpired() {
	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		if s.IsExpired() {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range expired {
		if err := s.transition("expire", StatusTimeout, StatusActive, StatusPaused); err != nil {
			// Already settled or mid-completion.
			continue
		}
		s.AddError("timeout", "session expired due to inactivity", nil)
		s.releaseResources()
		m.removeSession(s.ID)
		observability.RecordSessionExpired(s.Type)
		log.Printf("cleaned up expired session %s", s.ID)
	}
}

// monitor is the metrics/limit-monitor job body. It recomputes runtime for
// active sessions and logs a warning when a session crosses its operation
// cap. Observability only; sessions are never forcibly stopped here.
func (m *Manager) monitor() {
	m.mu.RLock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.RUnlock()

	for _, s := range live {
		if s.Status() != StatusActive {
			continue
		}
		s.refreshRuntime()
		metrics := s.Metrics()
		if metrics.OperationsCount >= s.Config.MaxOperations {
			observability.RecordOperationLimitWarning(s.Type)
			log.Printf("session %s approaching operation limit (%d/%d)",
				s.ID, metrics.OperationsCount, s.Config.MaxOperations)
		}
	}
}

// ActiveSessionCount returns the number of initializing or active sessions.
func (m *Manager) ActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

func (m *Manager) activeCountLocked() int {
	n := 0
	for _, s := range m.sessions {
		switch s.Status() {
		case StatusInitializing, StatusActive:
			n++
		}
	}
	return n
}

func (m *Manager) updateActiveGauge() {
	m.mu.RLock()
	n := m.activeCountLocked()
	m.mu.RUnlock()
	observability.SetActiveSessions(n)
}

// Health reports the manager's condition. Read-only and side-effect-free.
func (m *Manager) Health() *Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := "healthy"
	if !m.running {
		status = "not_initialized"
	}
	active := m.activeCountLocked()
	return &Health{
		Status:             status,
		TotalSessions:      len(m.sessions),
		ActiveSessions:     active,
		SessionLimit:       m.opts.MaxConcurrentSessions,
		UtilizationPercent: float64(active) / float64(m.opts.MaxConcurrentSessions) * 100,
		TotalCreated:       m.totalCreated,
		TotalCompleted:     m.totalCompleted,
		TotalFailed:        m.totalFailed,
		CleanupTaskRunning: m.running,
		MonitorTaskRunning: m.running,
		AvailableTemplates: m.templates.Names(),
	}
}

// Statistics returns a detailed breakdown of the live collection plus
// lifetime counters.
func (m *Manager) Statistics() *Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Statistics{
		TotalSessions:    len(m.sessions),
		SessionsByType:   make(map[string]int),
		SessionsByStatus: make(map[Status]int),
	}

	var totalRuntime float64
	for _, s := range m.sessions {
		stats.SessionsByType[s.Type]++
		stats.SessionsByStatus[s.Status()]++
		metrics := s.Metrics()
		stats.TotalOperations += metrics.OperationsCount
		stats.TotalErrors += metrics.ErrorsCount
		totalRuntime += s.RuntimeDuration()
	}
	if len(m.sessions) > 0 {
		stats.AverageRuntime = totalRuntime / float64(len(m.sessions))
	}

	created := m.totalCreated
	if created < 1 {
		created = 1
	}
	stats.Lifetime = LifetimeStatistics{
		TotalCreated:   m.totalCreated,
		TotalCompleted: m.totalCompleted,
		TotalFailed:    m.totalFailed,
		SuccessRate:    float64(m.totalCompleted) / float64(created) * 100,
	}
	return stats
}

// Shutdown stops the background jobs, completes every still-active session
// with a shutdown reason, and closes the snapshot store. Failures to
// complete individual sessions are logged, not fatal.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()

	log.Printf("shutting down session manager")
	close(m.done)

	if wasRunning && m.cron != nil {
		stopped := m.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}

	m.mu.RLock()
	var active []string
	for id, s := range m.sessions {
		if s.Status() == StatusActive {
			active = append(active, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range active {
		if _, err := m.CompleteSession(ctx, id, map[string]any{"reason": "shutdown"}); err != nil {
			log.Printf("failed to complete session %s during shutdown: %v", id, err)
		}
	}

	m.removeWG.Wait()

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			log.Printf("failed to close snapshot store: %v", err)
		}
	}

	log.Printf("session manager shutdown complete")
	return nil
}
