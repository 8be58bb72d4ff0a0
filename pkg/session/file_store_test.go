package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testSnapshot(id string) *Snapshot {
	now := time.Now()
	return &Snapshot{
		SessionID:    id,
		SessionType:  TypeDefault,
		Status:       StatusCompleted,
		CreatedAt:    now,
		LastActivity: now,
		Metrics:      Metrics{OperationsCount: 5},
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	snap := testSnapshot("abc-123")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, "abc-123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.SessionID != "abc-123" || loaded.Status != StatusCompleted {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Metrics.OperationsCount != 5 {
		t.Errorf("OperationsCount = %d, want 5", loaded.Metrics.OperationsCount)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "nope"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestFileStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.Save(ctx, testSnapshot(id)); err != nil {
			t.Fatal(err)
		}
	}
	// Corrupt and unrelated files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "session_bad.json"), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("List returned %d snapshots, want 3", len(snaps))
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, testSnapshot("gone")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "gone"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load after delete = %v, want ErrSnapshotNotFound", err)
	}
	// Deleting a missing snapshot is not an error.
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestFileStoreRejectsUnsafeIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tests := []string{"../escape", "a/b", `a\b`, "a..b"}
	for _, id := range tests {
		if _, err := store.Load(ctx, id); !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Load(%q) err = %v, want ErrInvalidSessionID", id, err)
		}
	}
	if _, err := store.Load(ctx, ""); err == nil {
		t.Error("empty session ID should be rejected")
	}
}

func TestFileStoreClosed(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if err := store.Save(ctx, testSnapshot("x")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save after close = %v, want ErrStoreClosed", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("List after close = %v, want ErrStoreClosed", err)
	}
}
