package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStoreFromClient(client, "test:", 0)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return mr, store
}

func TestRedisStoreSaveAndLoad(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	snap := testSnapshot("sess-123")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-123")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SessionID != snap.SessionID {
		t.Errorf("SessionID mismatch: got %s, want %s", loaded.SessionID, snap.SessionID)
	}
	if loaded.Status != snap.Status {
		t.Errorf("Status mismatch: got %s, want %s", loaded.Status, snap.Status)
	}
	if loaded.Metrics.OperationsCount != snap.Metrics.OperationsCount {
		t.Errorf("OperationsCount mismatch: got %d, want %d",
			loaded.Metrics.OperationsCount, snap.Metrics.OperationsCount)
	}
}

func TestRedisStoreLoadNotFound(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	_, err := store.Load(ctx, "nonexistent")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestRedisStoreSaveReplaces(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	snap := testSnapshot("sess-replace")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap.Metrics.OperationsCount = 42
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-replace")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Metrics.OperationsCount != 42 {
		t.Errorf("OperationsCount = %d, want replaced value 42", loaded.Metrics.OperationsCount)
	}
}

func TestRedisStoreList(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSnapshot(id)); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Errorf("List returned %d snapshots, want 3", len(snaps))
	}
}

func TestRedisStoreListSkipsExpiredDocuments(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "test:", 100*time.Millisecond)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	if err := store.Save(ctx, testSnapshot("ephemeral")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Fast-forward time in miniredis past the snapshot TTL.
	mr.FastForward(time.Second)

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("List returned %d snapshots after expiry, want 0", len(snaps))
	}
}

func TestRedisStoreDelete(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSnapshot("sess-del")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "sess-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "sess-del"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load after delete = %v, want ErrSnapshotNotFound", err)
	}

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("index still holds %d entries after delete", len(snaps))
	}
}

func TestRedisStoreClosed(t *testing.T) {
	_, store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Save(ctx, testSnapshot("x")); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Save after close = %v, want ErrStoreClosed", err)
	}
	if _, err := store.Load(ctx, "x"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load after close = %v, want ErrStoreClosed", err)
	}
	// Double close is a no-op.
	if err := store.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
