package locker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UnitLocker serializes reconciliation runs per unit. TryLock returns
// false when another run already holds the unit.
type UnitLocker interface {
	TryLock(ctx context.Context, unitID string) (bool, error)
	Unlock(ctx context.Context, unitID string) error
}

const redisLockPrefix = "repair:reconcile-lock:"

type redisUnitLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUnitLocker builds an advisory lock shared across instances.
// The TTL bounds how long a crashed run can block a unit.
func NewRedisUnitLocker(client *redis.Client, ttl time.Duration) UnitLocker {
	return &redisUnitLocker{client: client, ttl: ttl}
}

func (l *redisUnitLocker) TryLock(ctx context.Context, unitID string) (bool, error) {
	return l.client.SetNX(ctx, redisLockPrefix+unitID, "1", l.ttl).Result()
}

func (l *redisUnitLocker) Unlock(ctx context.Context, unitID string) error {
	return l.client.Del(ctx, redisLockPrefix+unitID).Err()
}

type memoryUnitLocker struct {
	mu    sync.Mutex
	units map[string]struct{}
}

// NewMemoryUnitLocker builds a process-local locker for single-instance
// deployments and tests.
func NewMemoryUnitLocker() UnitLocker {
	return &memoryUnitLocker{units: make(map[string]struct{})}
}

func (l *memoryUnitLocker) TryLock(_ context.Context, unitID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.units[unitID]; held {
		return false, nil
	}
	l.units[unitID] = struct{}{}
	return true, nil
}

func (l *memoryUnitLocker) Unlock(_ context.Context, unitID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.units, unitID)
	return nil
}
