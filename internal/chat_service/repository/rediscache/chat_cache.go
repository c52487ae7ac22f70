// Package rediscache puts a read-through Redis cache in front of a ChatRepository.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autobahn/moderation/internal/chat_service/domain"
	"github.com/autobahn/moderation/internal/chat_service/repository"
)

const keyPrefix = "moderation:chat:"

// ChatCache serves Get from Redis when it can. Redis failures fall back to
// the wrapped repository, which stays the source of truth.
type ChatCache struct {
	next   repository.ChatRepository
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.ChatRepository = (*ChatCache)(nil)

func NewChatCache(next repository.ChatRepository, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *ChatCache {
	return &ChatCache{next: next, rdb: rdb, ttl: ttl, logger: logger.With("component", "chat_cache")}
}

func key(chatID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, chatID)
}

func (c *ChatCache) Get(ctx context.Context, chatID int64) (*domain.Chat, error) {
	raw, err := c.rdb.Get(ctx, key(chatID)).Bytes()
	switch {
	case err == nil:
		var chat domain.Chat
		if jsonErr := json.Unmarshal(raw, &chat); jsonErr == nil {
			cacheLookupsCounter.WithLabelValues("hit").Inc()
			return &chat, nil
		}
		c.logger.WarnContext(ctx, "Dropping undecodable cache entry", "chat_id", chatID)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "Chat cache read failed", "chat_id", chatID, "error", err)
	}
	cacheLookupsCounter.WithLabelValues("miss").Inc()

	chat, err := c.next.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(chat); err == nil {
		if err := c.rdb.Set(ctx, key(chatID), payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "Chat cache write failed", "chat_id", chatID, "error", err)
		}
	}
	return chat, nil
}

func (c *ChatCache) UpdateTags(ctx context.Context, chatID int64, tags map[string]string) error {
	if err := c.next.UpdateTags(ctx, chatID, tags); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, key(chatID)).Err(); err != nil {
		c.logger.WarnContext(ctx, "Chat cache invalidation failed", "chat_id", chatID, "error", err)
	}
	return nil
}
