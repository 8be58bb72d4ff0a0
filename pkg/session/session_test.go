package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testSession(t *testing.T, sessionType string) *Session {
	t.Helper()
	r := NewTemplateRegistry()
	return newSession("test-session-id", sessionType, r.Resolve(sessionType, nil))
}

func TestNewSessionStartsInitializing(t *testing.T) {
	s := testSession(t, TypeDefault)
	if got := s.Status(); got != StatusInitializing {
		t.Errorf("Status() = %q, want %q", got, StatusInitializing)
	}
	if s.RuntimeDuration() != 0 {
		t.Errorf("RuntimeDuration() = %v before activation, want 0", s.RuntimeDuration())
	}
}

func TestAddOperationSequencesFromOne(t *testing.T) {
	s := testSession(t, TypeDefault)

	s.AddOperation("first", nil)
	s.AddOperation("second", map[string]any{"k": "v"})
	s.AddOperation("third", nil)

	if got := s.Metrics().OperationsCount; got != 3 {
		t.Fatalf("OperationsCount = %d, want 3", got)
	}
	for i, op := range s.operationHistory {
		if op.Sequence != i+1 {
			t.Errorf("operation %d has Sequence %d, want %d", i, op.Sequence, i+1)
		}
	}
	snap := s.Snapshot()
	if snap.OperationCount != 3 {
		t.Errorf("Snapshot().OperationCount = %d, want 3", snap.OperationCount)
	}
}

func TestAddErrorIncrementsCounter(t *testing.T) {
	s := testSession(t, TypeDefault)

	s.AddError("test_error", "something broke", nil)
	s.AddError("test_error", "something else broke", map[string]any{"code": 7})

	if got := s.Metrics().ErrorsCount; got != 2 {
		t.Errorf("ErrorsCount = %d, want 2", got)
	}
	if got := s.errorLog[1].Sequence; got != 2 {
		t.Errorf("second error Sequence = %d, want 2", got)
	}
}

func TestMetricsCountersAreMonotonic(t *testing.T) {
	s := testSession(t, TypeAPIWorkflow)

	s.RecordAPICall()
	s.RecordAPICall()
	s.RecordFileProcessed(512)
	s.RecordFileProcessed(0)
	s.RecordFileProcessed(-10)

	m := s.Metrics()
	if m.APICallsCount != 2 {
		t.Errorf("APICallsCount = %d, want 2", m.APICallsCount)
	}
	if m.FilesProcessed != 3 {
		t.Errorf("FilesProcessed = %d, want 3", m.FilesProcessed)
	}
	if m.BytesProcessed != 512 {
		t.Errorf("BytesProcessed = %d, want 512 (non-positive sizes ignored)", m.BytesProcessed)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		action  string
		next    Status
		allowed []Status
		wantErr bool
	}{
		{"pause active", StatusActive, "pause", StatusPaused, []Status{StatusActive}, false},
		{"pause initializing", StatusInitializing, "pause", StatusPaused, []Status{StatusActive}, true},
		{"resume paused", StatusPaused, "resume", StatusActive, []Status{StatusPaused}, false},
		{"resume active", StatusActive, "resume", StatusActive, []Status{StatusPaused}, true},
		{"complete paused", StatusPaused, "complete", StatusCompleting, []Status{StatusInitializing, StatusActive, StatusPaused}, false},
		{"complete completed", StatusCompleted, "complete", StatusCompleting, []Status{StatusInitializing, StatusActive, StatusPaused}, true},
		{"expire paused", StatusPaused, "expire", StatusTimeout, []Status{StatusActive, StatusPaused}, false},
		{"expire completing", StatusCompleting, "expire", StatusTimeout, []Status{StatusActive, StatusPaused}, true},
		{"expire failed", StatusFailed, "expire", StatusTimeout, []Status{StatusActive, StatusPaused}, true},
		{"expire timeout", StatusTimeout, "expire", StatusTimeout, []Status{StatusActive, StatusPaused}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession(t, TypeDefault)
			s.setStatus(tt.from)

			err := s.transition(tt.action, tt.next, tt.allowed...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Fatalf("error type = %T, want *InvalidTransitionError", err)
				}
				if invalid.From != tt.from {
					t.Errorf("error From = %q, want %q", invalid.From, tt.from)
				}
				if !strings.Contains(err.Error(), string(tt.from)) {
					t.Errorf("error %q should name current status %q", err, tt.from)
				}
				if got := s.Status(); got != tt.from {
					t.Errorf("status changed to %q on rejected transition", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := s.Status(); got != tt.next {
				t.Errorf("Status() = %q, want %q", got, tt.next)
			}
		})
	}
}

func TestActivationStampsStartedAtOnce(t *testing.T) {
	s := testSession(t, TypeDefault)

	s.setStatus(StatusActive)
	if s.startedAt == nil {
		t.Fatal("startedAt should be set on activation")
	}
	first := *s.startedAt

	s.setStatus(StatusPaused)
	s.setStatus(StatusActive)
	if !s.startedAt.Equal(first) {
		t.Error("startedAt should not be re-stamped on resume")
	}
}

func TestRuntimeDurationFreezesAtCompletion(t *testing.T) {
	s := testSession(t, TypeDefault)
	s.setStatus(StatusActive)
	time.Sleep(10 * time.Millisecond)
	s.setStatus(StatusCompleted)
	s.freezeRuntime()

	frozen := s.RuntimeDuration()
	if frozen <= 0 {
		t.Fatalf("RuntimeDuration() = %v after completion, want > 0", frozen)
	}
	time.Sleep(10 * time.Millisecond)
	if got := s.RuntimeDuration(); got != frozen {
		t.Errorf("RuntimeDuration() = %v, want frozen value %v", got, frozen)
	}
	if got := s.Metrics().ExecutionTimeSeconds; got != frozen {
		t.Errorf("ExecutionTimeSeconds = %v, want %v", got, frozen)
	}
}

func TestIsExpired(t *testing.T) {
	s := testSession(t, TypeTesting) // 30 minute timeout
	s.setStatus(StatusActive)

	if s.IsExpired() {
		t.Error("fresh session should not be expired")
	}

	s.mu.Lock()
	s.lastActivity = time.Now().Add(-31 * time.Minute)
	s.mu.Unlock()
	if !s.IsExpired() {
		t.Error("session past its inactivity window should be expired")
	}

	s.Touch()
	if s.IsExpired() {
		t.Error("touched session should not be expired")
	}
}

func TestTerminalSessionsNeverExpire(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed, StatusTimeout} {
		s := testSession(t, TypeTesting)
		s.setStatus(StatusActive)
		s.setStatus(status)
		s.mu.Lock()
		s.lastActivity = time.Now().Add(-24 * time.Hour)
		s.mu.Unlock()
		if s.IsExpired() {
			t.Errorf("%s session should never report expired", status)
		}
	}
}

func TestSetStatusNeverLeavesTerminalState(t *testing.T) {
	s := testSession(t, TypeDefault)
	s.setStatus(StatusActive)
	s.setStatus(StatusTimeout)

	s.setStatus(StatusCompleted)
	if got := s.Status(); got != StatusTimeout {
		t.Errorf("Status() = %q, want terminal %q to stick", got, StatusTimeout)
	}
	s.setStatus(StatusActive)
	if got := s.Status(); got != StatusTimeout {
		t.Errorf("Status() = %q, terminal session was reactivated", got)
	}
}

func TestSnapshotConfigIsDetached(t *testing.T) {
	s := testSession(t, TypeAPIWorkflow)

	snap := s.Snapshot()
	snap.Config.ResourceLimits["max_concurrent_api_calls"] = 999
	snap.Config.CustomSettings["injected"] = true

	if got := s.Config.ResourceLimits["max_concurrent_api_calls"]; got != 10 {
		t.Errorf("session config mutated through snapshot: max_concurrent_api_calls = %v", got)
	}
	if _, ok := s.Config.CustomSettings["injected"]; ok {
		t.Error("session config mutated through snapshot: custom setting leaked in")
	}
}

func TestSnapshotResourcesAndStateKeysSorted(t *testing.T) {
	s := testSession(t, TypeDefault)
	s.allocate("zebra")
	s.allocate("alpha")
	s.SetState("zz", 1)
	s.SetState("aa", 2)

	snap := s.Snapshot()
	if len(snap.AllocatedResources) != 2 || snap.AllocatedResources[0] != "alpha" {
		t.Errorf("AllocatedResources = %v, want sorted [alpha zebra]", snap.AllocatedResources)
	}
	if len(snap.StateKeys) != 2 || snap.StateKeys[0] != "aa" {
		t.Errorf("StateKeys = %v, want sorted [aa zz]", snap.StateKeys)
	}
}

type closeRecorder struct {
	closed bool
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestReleaseResources(t *testing.T) {
	s := testSession(t, TypeDefault)
	s.allocate("memory")

	good := &closeRecorder{}
	bad := &closeRecorder{err: errors.New("connection reset")}
	s.TrackConnection(bad)
	s.TrackConnection(good)

	tmp := filepath.Join(t.TempDir(), "scratch.dat")
	if err := os.WriteFile(tmp, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	s.TrackTempFile(tmp)
	s.TrackTempFile(filepath.Join(t.TempDir(), "never-created.dat"))

	s.releaseResources()

	if !good.closed {
		t.Error("connection after a failing one was not closed")
	}
	if !bad.closed {
		t.Error("failing connection was not closed")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temp file was not removed")
	}
	if got := len(s.Snapshot().AllocatedResources); got != 0 {
		t.Errorf("resource tags remaining after release: %d", got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := testSession(t, TypeDefault)

	if _, ok := s.State("missing"); ok {
		t.Error("State() reported a missing key as present")
	}
	s.SetState("cursor", 42)
	v, ok := s.State("cursor")
	if !ok || v != 42 {
		t.Errorf("State(cursor) = %v, %v; want 42, true", v, ok)
	}
}
