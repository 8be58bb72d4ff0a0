package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidSessionID is returned when a session ID contains unsafe path
// characters.
var ErrInvalidSessionID = errors.New("invalid session id: contains path separator or traversal sequence")

// validateSessionID checks that an ID is safe to use as a path component.
func validateSessionID(id string) error {
	if id == "" {
		return errors.New("session id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidSessionID
	}
	return nil
}

// FileStore implements SnapshotStore using one JSON file per session:
//
//	<base-dir>/
//	  └── session_<session-id>.json
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileStore creates a file-based snapshot store. If baseDir is empty it
// uses ~/.sessiond/sessions.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".sessiond", "sessions")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	return &FileStore{baseDir: baseDir}, nil
}

func (f *FileStore) snapshotPath(sessionID string) string {
	return filepath.Join(f.baseDir, "session_"+sessionID+".json")
}

// Save writes or replaces the snapshot for its session ID.
func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}
	if err := validateSessionID(snap.SessionID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(f.snapshotPath(snap.SessionID), data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by session ID.
func (f *FileStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.snapshotPath(sessionID)) // #nosec G304 - session ID validated to prevent traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}

// List returns all stored snapshots. Unreadable files are skipped.
func (f *FileStore) List(ctx context.Context) ([]*Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStoreClosed
	}

	entries, err := os.ReadDir(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	var snaps []*Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.baseDir, name)) // #nosec G304 - constrained to baseDir listing
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		snaps = append(snaps, &snap)
	}
	return snaps, nil
}

// Delete removes the snapshot for a session ID. Deleting a missing snapshot
// is not an error.
func (f *FileStore) Delete(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStoreClosed
	}
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	if err := os.Remove(f.snapshotPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Close marks the store closed. Further operations return ErrStoreClosed.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
