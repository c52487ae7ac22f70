// Package guard deduplicates ban notifications across concurrent events.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard claims a (chat, user) key with SET NX for ttl. Only the first
// claimant within the window may notify.
type RedisGuard struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisGuard(rdb redis.Cmdable, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Acquire(ctx context.Context, chatID, userID int64) (bool, error) {
	key := fmt.Sprintf("moderation:notify:%d:%d", chatID, userID)
	ok, err := g.rdb.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming notify key %s: %w", key, err)
	}
	return ok, nil
}
