package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
	"github.com/autobahn/moderation/internal/denylist_service/repository"
)

type table struct {
	entries []domain.Entry // ordered by index
	next    int64
}

// DenylistRepository is an in-process store with the same semantics as the
// postgres one. Used by STORAGE_DRIVER=memory and by tests.
type DenylistRepository struct {
	mu     sync.Mutex
	tables map[domain.Category]*table
}

var _ repository.DenylistRepository = (*DenylistRepository)(nil)

func NewDenylistRepository() *DenylistRepository {
	return &DenylistRepository{tables: make(map[domain.Category]*table)}
}

func (r *DenylistRepository) tableLocked(category domain.Category) (*table, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
	t, ok := r.tables[category]
	if !ok {
		t = &table{next: 1}
		r.tables[category] = t
	}
	return t, nil
}

func (t *table) insert(category domain.Category, value string) domain.Entry {
	entry := domain.Entry{Index: t.next, Category: category, Value: value}
	t.next++
	t.entries = append(t.entries, entry)
	return entry
}

func (t *table) active(value string) (domain.Entry, bool) {
	for _, e := range t.entries {
		if e.Value == value && !e.Retired {
			return e, true
		}
	}
	return domain.Entry{}, false
}

func (r *DenylistRepository) Add(_ context.Context, category domain.Category, value string) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, err
	}
	entry := t.insert(category, value)
	return &entry, nil
}

func (r *DenylistRepository) Ensure(_ context.Context, category domain.Category, value string) (*domain.Entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, false, err
	}
	if existing, ok := t.active(value); ok {
		return &existing, false, nil
	}
	entry := t.insert(category, value)
	return &entry, true, nil
}

func (r *DenylistRepository) GetByValue(_ context.Context, category domain.Category, value string) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, err
	}
	if entry, ok := t.active(value); ok {
		return &entry, nil
	}
	return nil, domain.ErrNotFound
}

func (r *DenylistRepository) Get(_ context.Context, category domain.Category, index int64) (*domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, err
	}
	for _, e := range t.entries {
		if e.Index == index {
			entry := e
			return &entry, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *DenylistRepository) Retire(_ context.Context, category domain.Category, value string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return 0, err
	}
	var first int64
	for i := range t.entries {
		if t.entries[i].Value == value && !t.entries[i].Retired {
			t.entries[i].Retired = true
			if first == 0 {
				first = t.entries[i].Index
			}
		}
	}
	if first == 0 {
		return 0, domain.ErrNotFound
	}
	return first, nil
}

func (r *DenylistRepository) GetAll(_ context.Context, category domain.Category) ([]domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.Retired {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *DenylistRepository) GetIndices(_ context.Context, category domain.Category, indices []int64) ([]domain.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return nil, err
	}
	wanted := make(map[int64]struct{}, len(indices))
	for _, i := range indices {
		wanted[i] = struct{}{}
	}
	out := make([]domain.Entry, 0, len(wanted))
	for _, e := range t.entries {
		if _, ok := wanted[e.Index]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *DenylistRepository) Count(_ context.Context, category domain.Category) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, err := r.tableLocked(category)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, e := range t.entries {
		if !e.Retired {
			n++
		}
	}
	return n, nil
}
