package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
)

type MockAuthority struct {
	mock.Mock
}

func (m *MockAuthority) Permission(ctx context.Context) (domain.Permission, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Permission), args.Error(1)
}

func (m *MockAuthority) AddBans(ctx context.Context, bans []domain.AuthorityBan) error {
	args := m.Called(ctx, bans)
	return args.Error(0)
}

func (m *MockAuthority) DeleteBan(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Put(ctx context.Context, key string, body []byte) (string, error) {
	args := m.Called(ctx, key, body)
	return args.String(0), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
