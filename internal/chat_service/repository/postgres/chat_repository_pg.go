package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/autobahn/moderation/internal/chat_service/domain"
	"github.com/autobahn/moderation/internal/chat_service/repository"
	"github.com/autobahn/moderation/internal/platform/database"
)

type PgChatRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

func NewPgChatRepository(db database.DBTX, logger *slog.Logger) *PgChatRepository {
	return &PgChatRepository{db: db, logger: logger.With("component", "chat_repository_pg")}
}

func (r *PgChatRepository) Get(ctx context.Context, chatID int64) (*domain.Chat, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO chats (id, tags) VALUES ($1, '{}'::jsonb) ON CONFLICT (id) DO NOTHING`, chatID); err != nil {
		r.logger.ErrorContext(ctx, "Error creating chat record", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("creating chat %d: %w", chatID, err)
	}

	var (
		chat domain.Chat
		raw  []byte
	)
	if err := r.db.QueryRow(ctx, `SELECT id, tags FROM chats WHERE id = $1`, chatID).Scan(&chat.ID, &raw); err != nil {
		r.logger.ErrorContext(ctx, "Error fetching chat record", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("fetching chat %d: %w", chatID, err)
	}
	chat.Tags = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &chat.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of chat %d: %w", chatID, err)
		}
	}
	return &chat, nil
}

func (r *PgChatRepository) UpdateTags(ctx context.Context, chatID int64, tags map[string]string) error {
	if tags == nil {
		tags = map[string]string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encoding tags of chat %d: %w", chatID, err)
	}
	query := `INSERT INTO chats (id, tags) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET tags = excluded.tags`
	if _, err := r.db.Exec(ctx, query, chatID, string(raw)); err != nil {
		r.logger.ErrorContext(ctx, "Error updating chat tags", "chat_id", chatID, "error", err)
		return fmt.Errorf("updating tags of chat %d: %w", chatID, err)
	}
	r.logger.InfoContext(ctx, "Chat tags updated", "chat_id", chatID, "tags", len(tags))
	return nil
}
