package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
	"github.com/autobahn/moderation/internal/denylist_service/repository"
)

// DefaultMaxQueryItems keeps a query reply under the platform's entity limit.
const DefaultMaxQueryItems = 45

// maxExpandedIndices bounds how far a range argument such as 1..1000000 expands.
const maxExpandedIndices = 1000

// Canonicalizer is the identity resolver as seen by the manager.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, category domain.Category, token string) (string, error)
	Digest(ctx context.Context, category domain.Category, payload []byte) (value, warning string, err error)
}

// Report partitions the outcome of an add into the three operator buckets.
type Report struct {
	Category domain.Category `json:"-"`
	Added    []domain.Entry  `json:"added"`
	Existing []domain.Entry  `json:"existing"`
	Skipped  []string        `json:"skipped"`
	Warning  string          `json:"warning,omitempty"`
}

type RetireReport struct {
	Category domain.Category `json:"-"`
	Removed  []string        `json:"removed"`
	Skipped  []string        `json:"skipped"`
}

type QueryResult struct {
	Category domain.Category `json:"-"`
	Items    []domain.Entry  `json:"items"`
	// Total is the number of active entries in the category.
	Total int64 `json:"total"`
}

type CategoryCount struct {
	Category domain.Category `json:"-"`
	Name     string          `json:"name"`
	Code     string          `json:"code"`
	Count    int64           `json:"count"`
}

// Manager implements the operator commands on top of the registry. Adds go
// through Ensure, so the manager never creates a second active entry for a value.
type Manager struct {
	repo          repository.DenylistRepository
	resolver      Canonicalizer
	maxQueryItems int
	logger        *slog.Logger
}

func NewManager(repo repository.DenylistRepository, resolver Canonicalizer, maxQueryItems int, logger *slog.Logger) *Manager {
	if maxQueryItems <= 0 {
		maxQueryItems = DefaultMaxQueryItems
	}
	return &Manager{
		repo:          repo,
		resolver:      resolver,
		maxQueryItems: maxQueryItems,
		logger:        logger.With("service", "denylist_manager"),
	}
}

// isSkippable reports resolution failures that are classified as skipped.
func isSkippable(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrFirstPartyDomain) ||
		errors.Is(err, domain.ErrUnresolvable)
}

func checkTokenCategory(category domain.Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
	if category.Binary() {
		return fmt.Errorf("%w: %s needs a file or photo, not tokens", domain.ErrInvalidInput, category)
	}
	return nil
}

// Add canonicalizes each token and ensures it is denylisted. Storage errors
// abort the command; resolution failures only mark the token skipped.
func (m *Manager) Add(ctx context.Context, category domain.Category, tokens []string) (*Report, error) {
	if err := checkTokenCategory(category); err != nil {
		return nil, err
	}

	report := &Report{Category: category, Added: []domain.Entry{}, Existing: []domain.Entry{}, Skipped: []string{}}
	for _, token := range tokens {
		value, err := m.resolver.Canonicalize(ctx, category, token)
		if err != nil {
			if !isSkippable(err) {
				return nil, err
			}
			m.logger.InfoContext(ctx, "Skipping denylist token", "category", category.String(), "token", token, "reason", err)
			report.Skipped = append(report.Skipped, token)
			denylistItemsCounter.WithLabelValues(category.String(), "add", "skipped").Inc()
			continue
		}

		if err := m.ensure(ctx, report, value); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// AddPayload hashes a file or photo and ensures the digest is denylisted.
func (m *Manager) AddPayload(ctx context.Context, category domain.Category, payload []byte) (*Report, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
	if !category.Binary() {
		return nil, fmt.Errorf("%w: %s takes tokens, not a payload", domain.ErrInvalidInput, category)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: need a file or photo", domain.ErrInvalidInput)
	}

	value, warning, err := m.resolver.Digest(ctx, category, payload)
	if err != nil {
		return nil, err
	}

	report := &Report{Category: category, Added: []domain.Entry{}, Existing: []domain.Entry{}, Skipped: []string{}}
	if err := m.ensure(ctx, report, value); err != nil {
		return nil, err
	}
	// The warning only matters for an image that just made it into the list.
	if warning != "" && len(report.Added) > 0 {
		report.Warning = warning
		lowEntropyWarningsCounter.Inc()
	}
	return report, nil
}

func (m *Manager) ensure(ctx context.Context, report *Report, value string) error {
	category := report.Category
	entry, created, err := m.repo.Ensure(ctx, category, value)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to add denylist entry", "category", category.String(), "error", err)
		return fmt.Errorf("adding %s entry: %w", category, err)
	}
	if created {
		report.Added = append(report.Added, *entry)
		denylistItemsCounter.WithLabelValues(category.String(), "add", "added").Inc()
		m.logger.InfoContext(ctx, "Denylist entry added", "category", category.String(), "index", entry.Index)
	} else {
		report.Existing = append(report.Existing, *entry)
		denylistItemsCounter.WithLabelValues(category.String(), "add", "existing").Inc()
	}
	return nil
}

// Retire retires every token's active entry. Token categories are
// canonicalized first; binary categories take the stored digest as the token.
func (m *Manager) Retire(ctx context.Context, category domain.Category, tokens []string) (*RetireReport, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}

	report := &RetireReport{Category: category, Removed: []string{}, Skipped: []string{}}
	for _, token := range tokens {
		value := strings.ToLower(strings.TrimSpace(token))
		if !category.Binary() {
			var err error
			value, err = m.resolver.Canonicalize(ctx, category, token)
			if err != nil {
				if !isSkippable(err) {
					return nil, err
				}
				report.Skipped = append(report.Skipped, token)
				denylistItemsCounter.WithLabelValues(category.String(), "retire", "skipped").Inc()
				continue
			}
		}

		index, err := m.repo.Retire(ctx, category, value)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				report.Skipped = append(report.Skipped, token)
				denylistItemsCounter.WithLabelValues(category.String(), "retire", "skipped").Inc()
				continue
			}
			return nil, fmt.Errorf("retiring %s entry: %w", category, err)
		}
		m.logger.InfoContext(ctx, "Denylist entry retired", "category", category.String(), "index", index)
		report.Removed = append(report.Removed, value)
		denylistItemsCounter.WithLabelValues(category.String(), "retire", "removed").Inc()
	}
	return report, nil
}

// Query returns the entries with the given indices (retired ones included) or,
// without indices, the active entries. Both are capped at maxQueryItems.
func (m *Manager) Query(ctx context.Context, category domain.Category, indices []int64) (*QueryResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}

	total, err := m.repo.Count(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("counting %s entries: %w", category, err)
	}

	var items []domain.Entry
	if len(indices) > 0 {
		if len(indices) > m.maxQueryItems {
			indices = indices[:m.maxQueryItems]
		}
		items, err = m.repo.GetIndices(ctx, category, indices)
	} else {
		items, err = m.repo.GetAll(ctx, category)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s entries: %w", category, err)
	}
	if len(items) > m.maxQueryItems {
		items = items[:m.maxQueryItems]
	}
	return &QueryResult{Category: category, Items: items, Total: total}, nil
}

// Counts returns the active entry count of every category in code order.
func (m *Manager) Counts(ctx context.Context) ([]CategoryCount, error) {
	counts := make([]CategoryCount, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		n, err := m.repo.Count(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("counting %s entries: %w", category, err)
		}
		counts = append(counts, CategoryCount{Category: category, Name: category.String(), Code: category.Code(), Count: n})
	}
	return counts, nil
}

// ParseIndices reads query arguments such as "3", "4..20" or "1,5,9".
func ParseIndices(args []string) ([]int64, error) {
	var indices []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if lo, hi, ok := strings.Cut(part, ".."); ok {
				from, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: range %q", domain.ErrInvalidInput, part)
				}
				to, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
				if err != nil || to < from {
					return nil, fmt.Errorf("%w: range %q", domain.ErrInvalidInput, part)
				}
				for i := from; len(indices) < maxExpandedIndices; i++ {
					indices = append(indices, i)
					if i == to {
						break
					}
				}
				continue
			}
			i, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: index %q", domain.ErrInvalidInput, part)
			}
			indices = append(indices, i)
		}
	}
	return indices, nil
}
