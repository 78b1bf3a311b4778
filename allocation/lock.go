package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/warp/allocation-ledger/stock"
)

// Locker serializes allocations out of the same (owner, item) pool so the
// available-balance check and the debit cannot interleave.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func poolKey(owner stock.OwnerID, item stock.ItemName) string {
	return fmt.Sprintf("pool:%s:%s", owner, item)
}

// =============================================================================
// KEYED MUTEX - In-process
// =============================================================================

// KeyedMutex is a Locker for a single server process.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]chan struct{})}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[key] = slot
	}
	k.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %v", ErrLockBusy, key, ctx.Err())
	}
}

// =============================================================================
// REDIS LOCKER - Across server replicas
// =============================================================================

// RedisLocker holds the pool lock in Redis so several replicas can share
// one database.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, retry: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "allocation-ledger:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}
