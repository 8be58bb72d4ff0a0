package session

import (
	"errors"
	"fmt"
)

// Common errors for manager operations.
var (
	// ErrNotFound is returned when a session ID is unknown to the manager.
	ErrNotFound = errors.New("session not found")
	// ErrManagerClosed is returned when operating on a shut-down manager.
	ErrManagerClosed = errors.New("session manager is closed")
)

// CapacityError is returned when the live collection has reached the
// configured concurrency ceiling.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum concurrent sessions (%d) reached", e.Limit)
}

// InvalidTransitionError is returned when a lifecycle operation is invoked
// from a status that does not permit it. The message names the current
// status.
type InvalidTransitionError struct {
	SessionID string
	Action    string
	From      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s cannot %s from status %q", e.SessionID, e.Action, e.From)
}

// AllocationError is returned when type-specific resource setup fails during
// session creation. The half-built session is unregistered before it is
// returned.
type AllocationError struct {
	SessionID   string
	SessionType string
	Err         error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate resources for %s session %s: %v", e.SessionType, e.SessionID, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// PersistenceError wraps a snapshot-store failure. It is logged and recorded
// but never aborts the surrounding operation.
type PersistenceError struct {
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// TeardownError wraps a per-resource cleanup failure. Teardown continues past
// individual failures; the error is logged only.
type TeardownError struct {
	SessionID string
	Resource  string
	Err       error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("tear down %s for session %s: %v", e.Resource, e.SessionID, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
