package app

import (
	"context"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
)

// Authority is the external ban authority client.
type Authority interface {
	Permission(ctx context.Context) (domain.Permission, error)
	AddBans(ctx context.Context, bans []domain.AuthorityBan) error
	DeleteBan(ctx context.Context, id int64) error
}

// EventPublisher is satisfied by messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SnapshotStore keeps registry exports, e.g. in S3.
type SnapshotStore interface {
	Put(ctx context.Context, key string, body []byte) (location string, err error)
}
