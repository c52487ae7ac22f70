package repository

import (
	"context"

	"github.com/autobahn/moderation/internal/chat_service/domain"
)

// ChatRepository stores chat records. Get creates the record on first use.
type ChatRepository interface {
	Get(ctx context.Context, chatID int64) (*domain.Chat, error)
	// UpdateTags replaces the chat's tags wholesale.
	UpdateTags(ctx context.Context, chatID int64, tags map[string]string) error
}
