package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/banlist_service/repository"
)

type BanRepository struct {
	mu    sync.RWMutex
	users map[int64]domain.BannedUser
	now   func() time.Time
}

var _ repository.BanRepository = (*BanRepository)(nil)

func NewBanRepository() *BanRepository {
	return &BanRepository{
		users: make(map[int64]domain.BannedUser),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *BanRepository) Get(_ context.Context, id int64) (*domain.BannedUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (r *BanRepository) GetMultiple(_ context.Context, ids []int64) ([]domain.BannedUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BannedUser, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *BanRepository) GetAll(ctx context.Context) ([]domain.BannedUser, error) {
	return r.GetAllNotIn(ctx, nil)
}

func (r *BanRepository) GetAllNotIn(_ context.Context, excluded []int64) ([]domain.BannedUser, error) {
	skip := make(map[int64]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BannedUser, 0, len(r.users))
	for id, user := range r.users {
		if _, ok := skip[id]; !ok {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *BanRepository) CountReason(_ context.Context, reason string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, user := range r.users {
		if user.Reason == reason {
			n++
		}
	}
	return n, nil
}

func (r *BanRepository) TotalCount(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func (r *BanRepository) UpsertMultiple(_ context.Context, records []domain.BannedUser) error {
	if err := domain.ValidateBatch(records); err != nil {
		return err
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range domain.DedupeLastWins(records) {
		if rec.RecordedAt.IsZero() {
			rec.RecordedAt = now
		}
		if prev, ok := r.users[rec.ID]; ok && rec.Message == nil {
			rec.Message = prev.Message
		}
		r.users[rec.ID] = rec
	}
	return nil
}

func (r *BanRepository) Remove(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}
