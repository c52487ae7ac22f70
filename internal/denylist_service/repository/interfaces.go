package repository

import (
	"context"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

// DenylistRepository is one generic store for every denylist category.
// Lookups of absent values return domain.ErrNotFound.
type DenylistRepository interface {
	// Add inserts value unconditionally with a fresh index. It does not deduplicate.
	Add(ctx context.Context, category domain.Category, value string) (*domain.Entry, error)
	// Ensure returns the active entry for value, inserting it first if there is none.
	// created is true when a new entry was inserted. Concurrent callers for the same
	// value never produce two active entries.
	Ensure(ctx context.Context, category domain.Category, value string) (entry *domain.Entry, created bool, err error)
	// GetByValue returns the active entry for value; retired entries are invisible.
	GetByValue(ctx context.Context, category domain.Category, value string) (*domain.Entry, error)
	// Get fetches by index regardless of the retired flag.
	Get(ctx context.Context, category domain.Category, index int64) (*domain.Entry, error)
	// Retire marks the active entry for value retired and returns its index.
	Retire(ctx context.Context, category domain.Category, value string) (int64, error)
	GetAll(ctx context.Context, category domain.Category) ([]domain.Entry, error)
	// GetIndices returns the entries with any of the given indices, retired or not.
	GetIndices(ctx context.Context, category domain.Category, indices []int64) ([]domain.Entry, error)
	// Count returns the number of active entries.
	Count(ctx context.Context, category domain.Category) (int64, error)
}
