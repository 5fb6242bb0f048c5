package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"argus/core"
	"argus/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Snapshot is one dashboard's last-known-good state as persisted to Redis.
// A restarted instance restores these so it serves data immediately instead
// of empty tables until the first poll completes.
type Snapshot struct {
	Records []core.Record          `json:"records"`
	Summary map[string]interface{} `json:"summary"`
	TakenAt time.Time              `json:"taken_at"`
}

// snapshotMaxBytes caps one serialized snapshot; anything larger is not
// worth restoring and would bloat Redis.
const snapshotMaxBytes = 10 << 20

// SnapshotCache stores dashboard snapshots in Redis.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewSnapshotCache creates a snapshot cache over a Redis connection.
func NewSnapshotCache(addr, password string, db, poolSize int, ttl time.Duration, logger *zap.SugaredLogger) *SnapshotCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SnapshotCache{client: client, ttl: ttl, logger: logger}
}

// Ping tests the Redis connection.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

func snapshotKey(dashboard string) string {
	return "argus:snapshot:" + dashboard
}

// Save persists one dashboard snapshot.
func (c *SnapshotCache) Save(ctx context.Context, dashboard string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return fmt.Errorf("marshal snapshot for %s: %w", dashboard, err)
	}
	if len(data) > snapshotMaxBytes {
		metrics.CacheErrors.WithLabelValues("redis", "size_limit").Inc()
		return fmt.Errorf("snapshot for %s is %d bytes, over the %d byte cap", dashboard, len(data), snapshotMaxBytes)
	}

	if err := c.client.Set(ctx, snapshotKey(dashboard), data, c.ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("store snapshot for %s: %w", dashboard, err)
	}
	return nil
}

// Load retrieves one dashboard snapshot. The second return is false when no
// snapshot exists.
func (c *SnapshotCache) Load(ctx context.Context, dashboard string) (Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(dashboard)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return Snapshot{}, false, nil
	}
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return Snapshot{}, false, fmt.Errorf("load snapshot for %s: %w", dashboard, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return Snapshot{}, false, fmt.Errorf("decode snapshot for %s: %w", dashboard, err)
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return snap, true, nil
}

// Delete removes one dashboard snapshot.
func (c *SnapshotCache) Delete(ctx context.Context, dashboard string) error {
	return c.client.Del(ctx, snapshotKey(dashboard)).Err()
}
