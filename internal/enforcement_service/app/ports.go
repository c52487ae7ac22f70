package app

import (
	"context"
	"time"

	bandomain "github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/enforcement_service/domain"
)

// Platform is the chat transport as seen by the engine.
type Platform interface {
	Ban(ctx context.Context, chatID, userID int64) error
	AdminIDs(ctx context.Context, chatID int64) ([]int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	// SendMessage posts text and has the platform delete it after deleteAfter.
	SendMessage(ctx context.Context, chatID int64, text string, deleteAfter time.Duration) error
}

// BanLookup returns bandomain.ErrNotFound for users that are not banned.
type BanLookup interface {
	Get(ctx context.Context, id int64) (*bandomain.BannedUser, error)
}

// BanWriter records a global ban.
type BanWriter interface {
	GlobalBan(ctx context.Context, id int64, reason, message string) (*bandomain.BannedUser, error)
}

// Matcher checks event content against the denylists; nil means no hit.
type Matcher interface {
	Match(ctx context.Context, ev *domain.Event, uid int64) (*domain.DenylistHit, error)
}

type TagReader interface {
	TagsFor(ctx context.Context, chatID int64) (map[string]string, error)
}

// NotifyGuard lets exactly one of several concurrent runs notify for a subject.
type NotifyGuard interface {
	Acquire(ctx context.Context, chatID, userID int64) (bool, error)
}
