package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	dldomain "github.com/autobahn/moderation/internal/denylist_service/domain"
	"github.com/autobahn/moderation/internal/denylist_service/resolver"
	"github.com/autobahn/moderation/internal/enforcement_service/domain"
)

const (
	// Accounts older than this id are never matched against message content.
	minCheckedUserID  int64 = 610000000
	// Documents at or above this size are not downloaded for hashing.
	maxHashedFileSize int64 = 10 << 20
	mhashTolerance          = 2
)

// Operators adding entries with these commands quote the spam they add.
var denylistCommands = []string{"/addblacklist"}

// DenylistReader is the read side of the denylist registry.
type DenylistReader interface {
	GetByValue(ctx context.Context, category dldomain.Category, value string) (*dldomain.Entry, error)
	GetAll(ctx context.Context, category dldomain.Category) ([]dldomain.Entry, error)
}

// ContentResolver maps message content to denylist values.
type ContentResolver interface {
	Canonicalize(ctx context.Context, category dldomain.Category, token string) (string, error)
	WrittenDomain(token string) (string, error)
	HashFile(ctx context.Context, payload []byte) (string, error)
	HashImage(ctx context.Context, payload []byte) (hash, warning string, err error)
}

// DenylistMatcher finds the first denylist entry an event's content hits.
type DenylistMatcher struct {
	lists    DenylistReader
	resolver ContentResolver
	logger   *slog.Logger
}

func NewDenylistMatcher(lists DenylistReader, res ContentResolver, logger *slog.Logger) *DenylistMatcher {
	return &DenylistMatcher{
		lists:    lists,
		resolver: res,
		logger:   logger.With("component", "denylist_matcher"),
	}
}

// Match returns nil when nothing matched. Errors come only from the registry
// or a cancelled context; content that cannot be resolved is passed over.
func (m *DenylistMatcher) Match(ctx context.Context, ev *domain.Event, uid int64) (*domain.DenylistHit, error) {
	var (
		hit *domain.DenylistHit
		err error
	)
	switch ev.Kind {
	case domain.KindMessage:
		hit, err = m.matchMessage(ctx, ev, uid)
	case domain.KindMembership:
		hit, err = m.matchProfile(ctx, ev)
	}
	if hit != nil {
		denylistHitsCounter.WithLabelValues(hit.Category.String()).Inc()
	}
	return hit, err
}

func (m *DenylistMatcher) matchMessage(ctx context.Context, ev *domain.Event, uid int64) (*domain.DenylistHit, error) {
	if uid < minCheckedUserID {
		return nil, nil
	}
	for _, cmd := range denylistCommands {
		if strings.HasPrefix(ev.Text, cmd) {
			return nil, nil
		}
	}

	if ev.ViaBotID != nil {
		if hit, err := m.lookup(ctx, dldomain.CategoryChannel, strconv.FormatInt(*ev.ViaBotID, 10)); hit != nil || err != nil {
			return hit, err
		}
	}
	for _, link := range ev.URLs {
		if hit, err := m.matchURL(ctx, link); hit != nil || err != nil {
			return hit, err
		}
	}
	for _, mention := range ev.Mentions {
		if hit, err := m.resolveAndLookup(ctx, dldomain.CategoryChannel, mention); hit != nil || err != nil {
			return hit, err
		}
	}
	if hit, err := m.contains(ctx, dldomain.CategoryString, ev.Text); hit != nil || err != nil {
		return hit, err
	}

	if doc := ev.Document; doc != nil && len(doc.Data) > 0 && doc.Size < maxHashedFileSize {
		digest, err := m.resolver.HashFile(ctx, doc.Data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.DebugContext(ctx, "Could not hash document", "error", err)
		} else if hit, err := m.lookup(ctx, dldomain.CategoryFile, digest); hit != nil || err != nil {
			return hit, err
		}
	}

	photos := append([][]byte{ev.Photo}, ev.LinkedPhotos...)
	for _, photo := range photos {
		if hit, err := m.similarImage(ctx, photo); hit != nil || err != nil {
			return hit, err
		}
	}
	return nil, nil
}

func (m *DenylistMatcher) matchProfile(ctx context.Context, ev *domain.Event) (*domain.DenylistHit, error) {
	if hit, err := m.contains(ctx, dldomain.CategoryBio, ev.Bio); hit != nil || err != nil {
		return hit, err
	}
	return m.similarImage(ctx, ev.ProfilePhoto)
}

// matchURL checks the chat behind Telegram links and, for everything else,
// the domain both after redirects and as written.
func (m *DenylistMatcher) matchURL(ctx context.Context, link string) (*domain.DenylistHit, error) {
	resolved, err := m.resolver.Canonicalize(ctx, dldomain.CategoryDomain, link)
	if errors.Is(err, dldomain.ErrFirstPartyDomain) {
		return m.resolveAndLookup(ctx, dldomain.CategoryChannel, link)
	}
	if err == nil {
		if hit, err := m.lookup(ctx, dldomain.CategoryDomain, resolved); hit != nil || err != nil {
			return hit, err
		}
	}

	written, err := m.resolver.WrittenDomain(link)
	if err != nil || written == resolved {
		return nil, nil
	}
	return m.lookup(ctx, dldomain.CategoryDomain, written)
}

func (m *DenylistMatcher) resolveAndLookup(ctx context.Context, category dldomain.Category, token string) (*domain.DenylistHit, error) {
	value, err := m.resolver.Canonicalize(ctx, category, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.DebugContext(ctx, "Token not resolvable", "category", category.String(), "token", token, "error", err)
		return nil, nil
	}
	return m.lookup(ctx, category, value)
}

func (m *DenylistMatcher) lookup(ctx context.Context, category dldomain.Category, value string) (*domain.DenylistHit, error) {
	entry, err := m.lists.GetByValue(ctx, category, value)
	if err != nil {
		if errors.Is(err, dldomain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up %s denylist: %w", category, err)
	}
	return &domain.DenylistHit{Category: category, Index: entry.Index}, nil
}

// contains reports the first active entry that occurs as a substring of text.
func (m *DenylistMatcher) contains(ctx context.Context, category dldomain.Category, text string) (*domain.DenylistHit, error) {
	if text == "" {
		return nil, nil
	}
	entries, err := m.lists.GetAll(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("reading %s denylist: %w", category, err)
	}
	for _, e := range entries {
		if !e.Retired && e.Value != "" && strings.Contains(text, e.Value) {
			return &domain.DenylistHit{Category: category, Index: e.Index}, nil
		}
	}
	return nil, nil
}

func (m *DenylistMatcher) similarImage(ctx context.Context, payload []byte) (*domain.DenylistHit, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	hash, _, err := m.resolver.HashImage(ctx, payload)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.DebugContext(ctx, "Could not hash image", "error", err)
		return nil, nil
	}
	entries, err := m.lists.GetAll(ctx, dldomain.CategoryMHash)
	if err != nil {
		return nil, fmt.Errorf("reading mhash denylist: %w", err)
	}
	for _, e := range entries {
		if !e.Retired && resolver.HashesSimilar(e.Value, hash, mhashTolerance) {
			return &domain.DenylistHit{Category: dldomain.CategoryMHash, Index: e.Index}, nil
		}
	}
	return nil, nil
}
