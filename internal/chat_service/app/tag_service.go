package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/autobahn/moderation/internal/chat_service/domain"
	"github.com/autobahn/moderation/internal/chat_service/repository"
)

// TagService reads and edits per-chat configuration tags.
type TagService struct {
	repo   repository.ChatRepository
	logger *slog.Logger
}

func NewTagService(repo repository.ChatRepository, logger *slog.Logger) *TagService {
	return &TagService{repo: repo, logger: logger.With("service", "chat_tags")}
}

// TagsFor returns the tags of chatID, creating the chat record if needed.
func (s *TagService) TagsFor(ctx context.Context, chatID int64) (map[string]string, error) {
	chat, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading chat %d: %w", chatID, err)
	}
	return chat.Tags, nil
}

func (s *TagService) SetTag(ctx context.Context, chatID int64, name, value string) (map[string]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty tag name", domain.ErrInvalidInput)
	}
	return s.update(ctx, chatID, func(tags map[string]string) { tags[name] = value })
}

func (s *TagService) RemoveTag(ctx context.Context, chatID int64, name string) (map[string]string, error) {
	return s.update(ctx, chatID, func(tags map[string]string) { delete(tags, strings.TrimSpace(name)) })
}

func (s *TagService) update(ctx context.Context, chatID int64, mutate func(map[string]string)) (map[string]string, error) {
	chat, err := s.repo.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("loading chat %d: %w", chatID, err)
	}
	tags := chat.CloneTags()
	mutate(tags)
	if err := s.repo.UpdateTags(ctx, chatID, tags); err != nil {
		return nil, fmt.Errorf("saving tags of chat %d: %w", chatID, err)
	}
	s.logger.InfoContext(ctx, "Chat tags changed", "chat_id", chatID, "tags", tags)
	return tags, nil
}
