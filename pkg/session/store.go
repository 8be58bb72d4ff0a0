package session

import (
	"context"
	"errors"
)

// Common errors for snapshot storage.
var (
	// ErrSnapshotNotFound is returned when no snapshot exists for an ID.
	ErrSnapshotNotFound = errors.New("session snapshot not found")
	// ErrStoreClosed is returned when operating on a closed snapshot store.
	ErrStoreClosed = errors.New("snapshot store is closed")
)

// SnapshotStore persists terminal-state session snapshots, one JSON document
// per session ID. Snapshots are audit history, not crash-recovery state:
// loading them back never reconstructs live sessions.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save writes or replaces the snapshot for its session ID.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves a snapshot by session ID.
	// Returns ErrSnapshotNotFound if no snapshot exists.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)

	// List returns all stored snapshots.
	List(ctx context.Context) ([]*Snapshot, error)

	// Delete removes the snapshot for a session ID.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
