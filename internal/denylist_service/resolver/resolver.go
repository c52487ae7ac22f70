// Package resolver turns operator supplied tokens and payloads into the
// canonical value stored for each denylist category.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

// Directory resolves chat identities on the platform.
type Directory interface {
	// ResolveInviteLink returns the chat id behind an invite hash.
	ResolveInviteLink(ctx context.Context, hash string) (int64, error)
	// GetEntity returns the id of a user, chat or channel by handle.
	GetEntity(ctx context.Context, handle string) (int64, error)
}

// RedirectFollower returns the final URL after following redirects.
type RedirectFollower interface {
	Follow(ctx context.Context, rawURL string) (string, error)
}

type Options struct {
	FirstPartyDomains []string
	FollowRedirects   bool
	// MHashWarnSymbol and MHashWarnThreshold drive the low entropy warning:
	// a hash in which the symbol occurs more than threshold times is flagged.
	MHashWarnSymbol    byte
	MHashWarnThreshold int
	HashWorkers        int64
}

type Resolver struct {
	directory  Directory
	follower   RedirectFollower
	opts       Options
	firstParty map[string]struct{}
	workers    *semaphore.Weighted
	logger     *slog.Logger
}

// New builds a Resolver. directory and follower may be nil, in which case
// channel handles are unresolvable and redirects are never followed.
func New(directory Directory, follower RedirectFollower, opts Options, logger *slog.Logger) *Resolver {
	if opts.HashWorkers < 1 {
		opts.HashWorkers = 1
	}
	if opts.MHashWarnSymbol == 0 {
		opts.MHashWarnSymbol = '0'
	}
	firstParty := make(map[string]struct{}, len(opts.FirstPartyDomains))
	for _, d := range opts.FirstPartyDomains {
		firstParty[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &Resolver{
		directory:  directory,
		follower:   follower,
		opts:       opts,
		firstParty: firstParty,
		workers:    semaphore.NewWeighted(opts.HashWorkers),
		logger:     logger.With("component", "identity_resolver"),
	}
}

// Canonicalize maps a token of a token category to its stored form. Failures
// wrap domain.ErrInvalidInput, domain.ErrFirstPartyDomain or
// domain.ErrUnresolvable; callers report all of them as skipped.
func (r *Resolver) Canonicalize(ctx context.Context, category domain.Category, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", domain.ErrInvalidInput)
	}

	switch category {
	case domain.CategoryBio, domain.CategoryString:
		return token, nil
	case domain.CategoryChannel:
		return r.canonicalChannel(ctx, token)
	case domain.CategoryDomain:
		return r.canonicalDomain(ctx, token)
	case domain.CategoryTLD:
		tld := strings.ReplaceAll(token, ".", "")
		if tld == "" {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidInput, token)
		}
		return tld, nil
	case domain.CategoryFile, domain.CategoryMHash:
		return "", fmt.Errorf("%w: %s entries are derived from a payload", domain.ErrInvalidInput, category)
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
}

// Digest hashes a payload for a binary category. warning is non-empty when the
// image hash looks low entropy.
func (r *Resolver) Digest(ctx context.Context, category domain.Category, payload []byte) (value, warning string, err error) {
	switch category {
	case domain.CategoryFile:
		value, err = r.HashFile(ctx, payload)
		return value, "", err
	case domain.CategoryMHash:
		return r.HashImage(ctx, payload)
	default:
		return "", "", fmt.Errorf("%w: %s does not accept a payload", domain.ErrInvalidInput, category)
	}
}
