package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_GetOrCreate(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	chat, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, chat.Tags)

	require.NoError(t, repo.UpdateTags(ctx, 1, map[string]string{"polizei": "exclude"}))
	chat, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"polizei": "exclude"}, chat.Tags)
}

func TestChatRepository_ReturnsCopies(t *testing.T) {
	repo := NewChatRepository()
	ctx := context.Background()

	tags := map[string]string{"a": "1"}
	require.NoError(t, repo.UpdateTags(ctx, 1, tags))
	tags["a"] = "2"

	chat, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	chat.Tags["b"] = "3"

	again, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1"}, again.Tags)
}
