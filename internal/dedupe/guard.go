// Package dedupe guards against generating two recommendations for the same activity when
// the broker redelivers a message.
package dedupe

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	goredis "github.com/redis/go-redis/v9"
)

// Guard claims an activity before processing and releases the claim when processing fails.
type Guard interface {
	// Claim returns false when the activity was already claimed.
	Claim(ctx context.Context, activityID string) (bool, error)
	Release(ctx context.Context, activityID string) error
}

// Noop claims everything.
type Noop struct{}

func (Noop) Claim(context.Context, string) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error        { return nil }

// MemoryGuard remembers recently claimed activities in a bounded LRU. It only protects a
// single consumer process.
type MemoryGuard struct {
	cache *lru.Cache[string, struct{}]
}

// NewMemoryGuard constructs a MemoryGuard holding up to size activity ids.
func NewMemoryGuard(size int) (*MemoryGuard, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &MemoryGuard{cache: cache}, nil
}

func (g *MemoryGuard) Claim(_ context.Context, activityID string) (bool, error) {
	seen, _ := g.cache.ContainsOrAdd(activityID, struct{}{})
	return !seen, nil
}

func (g *MemoryGuard) Release(_ context.Context, activityID string) error {
	g.cache.Remove(activityID)
	return nil
}

// RedisGuard shares claims across consumer replicas using SET NX with a TTL.
type RedisGuard struct {
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisGuard connects to addr and verifies the connection.
func NewRedisGuard(ctx context.Context, addr string, ttl time.Duration) (*RedisGuard, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisGuardWithClient(rdb, ttl), nil
}

// NewRedisGuardWithClient wraps an existing client.
func NewRedisGuardWithClient(rdb goredis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "recommendation:activity:"}
}

func (g *RedisGuard) Claim(ctx context.Context, activityID string) (bool, error) {
	return g.rdb.SetNX(ctx, g.prefix+activityID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, activityID string) error {
	return g.rdb.Del(ctx, g.prefix+activityID).Err()
}

// Close releases the redis connection.
func (g *RedisGuard) Close() error {
	return g.rdb.Close()
}
