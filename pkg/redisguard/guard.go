package redisguard

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard implements a short-lived exclusive lock on Redis via SET NX with a
// TTL, used to reject duplicate in-flight checkout submissions.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a Guard. The TTL bounds how long a crashed holder can block a
// key.
func New(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

// Acquire attempts to take the lock for key. It returns false when another
// holder already has it.
func (g *Guard) Acquire(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	return g.rdb.SetNX(ctx, key, "1", g.ttl).Result()
}

// Release drops the lock. Best-effort: the TTL reclaims leaked locks.
func (g *Guard) Release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = g.rdb.Del(ctx, key).Err()
}
