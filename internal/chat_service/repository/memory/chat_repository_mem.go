package memory

import (
	"context"
	"sync"

	"github.com/autobahn/moderation/internal/chat_service/domain"
	"github.com/autobahn/moderation/internal/chat_service/repository"
)

type ChatRepository struct {
	mu    sync.RWMutex
	chats map[int64]map[string]string
}

var _ repository.ChatRepository = (*ChatRepository)(nil)

func NewChatRepository() *ChatRepository {
	return &ChatRepository{chats: make(map[int64]map[string]string)}
}

func (r *ChatRepository) Get(_ context.Context, chatID int64) (*domain.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags, ok := r.chats[chatID]
	if !ok {
		tags = map[string]string{}
		r.chats[chatID] = tags
	}
	chat := domain.Chat{ID: chatID, Tags: tags}
	return &domain.Chat{ID: chatID, Tags: chat.CloneTags()}, nil
}

func (r *ChatRepository) UpdateTags(_ context.Context, chatID int64, tags map[string]string) error {
	chat := domain.Chat{ID: chatID, Tags: tags}
	r.mu.Lock()
	r.chats[chatID] = chat.CloneTags()
	r.mu.Unlock()
	return nil
}
