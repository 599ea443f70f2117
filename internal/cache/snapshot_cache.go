package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/domain"
)

// SnapshotCache holds recent live read-outs keyed by unit identifier
// with an explicit TTL. Injected wherever a read-out might be reused so
// nothing depends on hidden process-wide state.
type SnapshotCache interface {
	Get(ctx context.Context, unitID string) (*domain.InventorySnapshot, bool)
	Set(ctx context.Context, unitID string, snapshot *domain.InventorySnapshot)
	Invalidate(ctx context.Context, unitID string)
}

const redisKeyPrefix = "repair:snapshot:"

type redisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSnapshotCache builds a Redis-backed cache shared across
// instances. Read errors degrade to cache misses.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) SnapshotCache {
	return &redisSnapshotCache{client: client, ttl: ttl, logger: logger}
}

func (c *redisSnapshotCache) Get(ctx context.Context, unitID string) (*domain.InventorySnapshot, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+unitID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("snapshot cache read failed", zap.String("unit_id", unitID), zap.Error(err))
		}
		return nil, false
	}
	var snapshot domain.InventorySnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn("snapshot cache entry malformed", zap.String("unit_id", unitID), zap.Error(err))
		return nil, false
	}
	return &snapshot, true
}

func (c *redisSnapshotCache) Set(ctx context.Context, unitID string, snapshot *domain.InventorySnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Warn("snapshot cache encode failed", zap.String("unit_id", unitID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+unitID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("snapshot cache write failed", zap.String("unit_id", unitID), zap.Error(err))
	}
}

func (c *redisSnapshotCache) Invalidate(ctx context.Context, unitID string) {
	if err := c.client.Del(ctx, redisKeyPrefix+unitID).Err(); err != nil {
		c.logger.Warn("snapshot cache invalidate failed", zap.String("unit_id", unitID), zap.Error(err))
	}
}

type memorySnapshotCache struct {
	lru *expirable.LRU[string, *domain.InventorySnapshot]
}

// NewMemorySnapshotCache builds a per-instance TTL LRU cache. Used when
// Redis is not configured and in tests.
func NewMemorySnapshotCache(maxSize int, ttl time.Duration) SnapshotCache {
	return &memorySnapshotCache{
		lru: expirable.NewLRU[string, *domain.InventorySnapshot](maxSize, nil, ttl),
	}
}

func (c *memorySnapshotCache) Get(_ context.Context, unitID string) (*domain.InventorySnapshot, bool) {
	return c.lru.Get(unitID)
}

func (c *memorySnapshotCache) Set(_ context.Context, unitID string, snapshot *domain.InventorySnapshot) {
	c.lru.Add(unitID, snapshot)
}

func (c *memorySnapshotCache) Invalidate(_ context.Context, unitID string) {
	c.lru.Remove(unitID)
}
