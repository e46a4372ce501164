package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGate is a Gate shared across process instances, backed by
// SET NX EX. Acquire and expiry are atomic on the Redis side, so two
// instances receiving the same webhook cannot both win.
type RedisGate struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGate(rdb *redis.Client, ttl time.Duration) (*RedisGate, error) {
	if rdb == nil {
		return nil, fmt.Errorf("reconcile: redis client is nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisGate{rdb: rdb, ttl: ttl}, nil
}

func dedupKey(callID string) string {
	return "webhook:call:" + callID
}

func (g *RedisGate) Acquire(ctx context.Context, callID string) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, dedupKey(callID), 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reconcile: dedup acquire: %w", err)
	}
	return ok, nil
}

func (g *RedisGate) Release(ctx context.Context, callID string) error {
	if err := g.rdb.Del(ctx, dedupKey(callID)).Err(); err != nil {
		return fmt.Errorf("reconcile: dedup release: %w", err)
	}
	return nil
}
