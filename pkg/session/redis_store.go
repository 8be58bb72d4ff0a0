package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SnapshotStore using Redis. It is suitable when
// snapshot history must outlive the host or be shared across hosts.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all snapshot keys (default: "sessiond:snapshot:").
	Prefix string
	// SnapshotTTL is the snapshot expiry duration (0 = never expire).
	SnapshotTTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore creates a Redis snapshot store and verifies connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sessiond:snapshot:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    cfg.SnapshotTTL,
	}, nil
}

// NewRedisStoreFromClient creates a Redis store from an existing client.
// This is useful for testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "sessiond:snapshot:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStore) snapshotKey(sessionID string) string {
	return r.prefix + "doc:" + sessionID
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisStore) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save writes or replaces the snapshot for its session ID.
func (r *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.snapshotKey(snap.SessionID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), snap.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by session ID.
func (r *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// List returns all stored snapshots. Index entries whose documents have
// expired are skipped.
func (r *RedisStore) List(ctx context.Context) ([]*Snapshot, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshot index: %w", err)
	}

	snaps := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := r.Load(ctx, id)
		if err != nil {
			if errors.Is(err, ErrSnapshotNotFound) {
				continue
			}
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Delete removes the snapshot for a session ID.
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.checkOpen(); err != nil {
		return err
	}

	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.snapshotKey(sessionID))
	pipe.SRem(ctx, r.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}
