package repository

import (
	"context"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
)

// BanRepository is the global ban registry.
type BanRepository interface {
	// Get returns domain.ErrNotFound when the user is not banned.
	Get(ctx context.Context, id int64) (*domain.BannedUser, error)
	// GetMultiple returns the banned users among ids, in no particular order.
	GetMultiple(ctx context.Context, ids []int64) ([]domain.BannedUser, error)
	GetAll(ctx context.Context) ([]domain.BannedUser, error)
	// GetAllNotIn returns every record whose id is not in excluded.
	GetAllNotIn(ctx context.Context, excluded []int64) ([]domain.BannedUser, error)
	CountReason(ctx context.Context, reason string) (int64, error)
	TotalCount(ctx context.Context) (int64, error)
	// UpsertMultiple writes the batch atomically. On conflict reason and
	// timestamp are overwritten. Records with a non-positive id fail the whole
	// batch with domain.ErrInvalidInput before anything is written.
	UpsertMultiple(ctx context.Context, records []domain.BannedUser) error
	// Remove deletes the record; removing an absent id is not an error.
	Remove(ctx context.Context, id int64) error
}
