package session

import (
	"io"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Session is an individual unit of lifecycle, metrics, and resource
// bookkeeping state. The manager is the only component that registers or
// removes sessions; a session mutates only its own fields and is safe for
// concurrent use.
type Session struct {
	// ID is the unique session identifier, assigned at creation.
	ID string
	// Type is the logical session category.
	Type string
	// Config is the effective configuration, immutable after creation.
	Config Config

	mu           sync.RWMutex
	status       Status
	metrics      Metrics
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	lastActivity time.Time

	stateData        map[string]any
	operationHistory []Operation
	errorLog         []ErrorRecord

	// Resource bookkeeping, owned exclusively by this session and only ever
	// touched during its own teardown.
	allocatedResources map[string]struct{}
	openConnections    []io.Closer
	tempFiles          []string
}

func newSession(id, sessionType string, cfg Config) *Session {
	now := time.Now()
	return &Session{
		ID:                 id,
		Type:               sessionType,
		Config:             cfg,
		status:             StatusInitializing,
		createdAt:          now,
		lastActivity:       now,
		stateData:          make(map[string]any),
		allocatedResources: make(map[string]struct{}),
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Metrics returns a copy of the session metrics.
func (s *Session) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// Touch updates the last-activity timestamp, deferring expiry.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// AddOperation appends an operation to the history, increments the operation
// counter, and updates last activity.
func (s *Session) AddOperation(opType string, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operationHistory = append(s.operationHistory, Operation{
		Timestamp: time.Now(),
		Type:      opType,
		Data:      data,
		Sequence:  len(s.operationHistory) + 1,
	})
	s.metrics.OperationsCount++
	s.lastActivity = time.Now()
}

// AddError appends an error record, increments the error counter, and
// updates last activity.
func (s *Session) AddError(errType, message string, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorLog = append(s.errorLog, ErrorRecord{
		Timestamp: time.Now(),
		Type:      errType,
		Message:   message,
		Data:      data,
		Sequence:  len(s.errorLog) + 1,
	})
	s.metrics.ErrorsCount++
	s.lastActivity = time.Now()
}

// RecordAPICall increments the API-call counter and updates activity.
func (s *Session) RecordAPICall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.APICallsCount++
	s.lastActivity = time.Now()
}

// RecordFileProcessed adds a processed file and its byte count to the
// metrics.
func (s *Session) RecordFileProcessed(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.FilesProcessed++
	if bytes > 0 {
		s.metrics.BytesProcessed += bytes
	}
	s.lastActivity = time.Now()
}

// SetState stores a value in the session's type-specific scratch state.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateData[key] = value
	s.lastActivity = time.Now()
}

// State retrieves a value from the scratch state.
func (s *Session) State(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.stateData[key]
	return v, ok
}

// TrackConnection registers a closable handle to be released at teardown.
func (s *Session) TrackConnection(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openConnections = append(s.openConnections, c)
}

// TrackTempFile registers a path to be deleted at teardown.
func (s *Session) TrackTempFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tempFiles = append(s.tempFiles, path)
}

// IsExpired reports whether the session's inactivity window has elapsed.
// Terminal sessions never expire, so the sweep never re-visits settled
// sessions.
func (s *Session) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isExpiredLocked()
}

func (s *Session) isExpiredLocked() bool {
	if s.status.Terminal() {
		return false
	}
	timeout := time.Duration(s.Config.TimeoutMinutes) * time.Minute
	return time.Since(s.lastActivity) > timeout
}

// RuntimeDuration returns the elapsed running time in seconds: zero before
// the session starts, current runtime while live, and the frozen final
// runtime once completed.
func (s *Session) RuntimeDuration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runtimeDurationLocked()
}

func (s *Session) runtimeDurationLocked() float64 {
	if s.startedAt == nil {
		return 0
	}
	end := time.Now()
	if s.completedAt != nil {
		end = *s.completedAt
	}
	return end.Sub(*s.startedAt).Seconds()
}

// Snapshot returns the JSON-serializable view of the session.
func (s *Session) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resources := make([]string, 0, len(s.allocatedResources))
	for tag := range s.allocatedResources {
		resources = append(resources, tag)
	}
	sort.Strings(resources)

	stateKeys := make([]string, 0, len(s.stateData))
	for k := range s.stateData {
		stateKeys = append(stateKeys, k)
	}
	sort.Strings(stateKeys)

	return &Snapshot{
		SessionID:          s.ID,
		SessionType:        s.Type,
		Status:             s.status,
		Config:             s.Config.clone(),
		Metrics:            s.metrics,
		CreatedAt:          s.createdAt,
		StartedAt:          s.startedAt,
		CompletedAt:        s.completedAt,
		LastActivity:       s.lastActivity,
		RuntimeDuration:    s.runtimeDurationLocked(),
		IsExpired:          s.isExpiredLocked(),
		OperationCount:     len(s.operationHistory),
		ErrorCount:         len(s.errorLog),
		AllocatedResources: resources,
		StateKeys:          stateKeys,
	}
}

// allocate records a logical resource tag.
func (s *Session) allocate(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocatedResources[tag] = struct{}{}
}

// setStatus transitions the session, stamping started/completed timestamps
// for the states that require them. Terminal states have no outgoing
// transitions; once settled, a session's status never changes again.
func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = status
	now := time.Now()
	switch {
	case status == StatusActive && s.startedAt == nil:
		s.startedAt = &now
	case status.Terminal():
		s.completedAt = &now
	}
}

// transition moves the session to next only if its current status is in
// allowed. It returns an InvalidTransitionError naming the current status
// otherwise.
func (s *Session) transition(action string, next Status, allowed ...Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := false
	for _, a := range allowed {
		if s.status == a {
			ok = true
			break
		}
	}
	if !ok {
		return &InvalidTransitionError{SessionID: s.ID, Action: action, From: s.status}
	}
	s.status = next
	now := time.Now()
	switch {
	case next == StatusActive && s.startedAt == nil:
		s.startedAt = &now
	case next.Terminal():
		s.completedAt = &now
	}
	return nil
}

// freezeRuntime pins the execution-time metric to the final runtime.
func (s *Session) freezeRuntime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ExecutionTimeSeconds = s.runtimeDurationLocked()
}

// refreshRuntime recomputes the execution-time metric for a live session.
func (s *Session) refreshRuntime() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ExecutionTimeSeconds = s.runtimeDurationLocked()
}

// releaseResources closes tracked connections, deletes tracked temp files,
// and clears the resource tags. Every step is best-effort: individual
// failures are logged and never stop the rest of teardown.
func (s *Session) releaseResources() {
	s.mu.Lock()
	conns := s.openConnections
	files := s.tempFiles
	s.openConnections = nil
	s.tempFiles = nil
	s.allocatedResources = make(map[string]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			log.Printf("%v", &TeardownError{SessionID: s.ID, Resource: "connection", Err: err})
		}
	}
	for _, path := range files {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Printf("%v", &TeardownError{SessionID: s.ID, Resource: "temp file", Err: err})
		}
	}
}
