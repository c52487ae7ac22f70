package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	bandomain "github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/enforcement_service/domain"
)

// DefaultNotifyDeleteAfter is how long a ban notification stays in the chat.
const DefaultNotifyDeleteAfter = 2 * time.Minute

// Opt-out tags read from the chat record.
const (
	tagPolizei     = "polizei"
	tagGrenzschutz = "grenzschutz"
	tagExclude     = "exclude"
	tagSilent      = "silent"
)

type EngineConfig struct {
	// SelfID is the bot's own user id; events about it are never acted on.
	SelfID            int64
	NotifyDeleteAfter time.Duration
}

// subjectExtractor returns the user an event is about, or nil.
type subjectExtractor func(ev *domain.Event) *int64

// Engine bans globally banned users when they join, are added or post.
// With denylists enabled it also bans users whose message or profile hits a
// denylist entry. It keeps no state between events; each Handle call walks the
// steps once.
type Engine struct {
	platform   Platform
	bans       BanLookup
	tags       TagReader
	guard      NotifyGuard
	matcher    Matcher
	writer     BanWriter
	cfg        EngineConfig
	extractors map[domain.EventKind]subjectExtractor
	logger     *slog.Logger
}

// NewEngine wires the engine. guard may be nil, in which case every banned
// run sends its own notification.
func NewEngine(platform Platform, bans BanLookup, tags TagReader, guard NotifyGuard, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.NotifyDeleteAfter <= 0 {
		cfg.NotifyDeleteAfter = DefaultNotifyDeleteAfter
	}
	return &Engine{
		platform: platform,
		bans:     bans,
		tags:     tags,
		guard:    guard,
		cfg:      cfg,
		extractors: map[domain.EventKind]subjectExtractor{
			domain.KindMembership: func(ev *domain.Event) *int64 { return ev.UserID },
			domain.KindMessage:    func(ev *domain.Event) *int64 { return ev.SenderID },
		},
		logger: logger.With("service", "enforcement_engine"),
	}
}

// WithDenylists turns on denylist enforcement for subjects that are not yet
// banned. A hit is recorded through writer before the chat ban.
func (e *Engine) WithDenylists(matcher Matcher, writer BanWriter) *Engine {
	e.matcher = matcher
	e.writer = writer
	return e
}

// Handle runs one event through the enforcement steps and returns where it
// stopped. The error is non-nil only for OutcomeError and for ban failures
// other than an invalid user id.
func (e *Engine) Handle(ctx context.Context, ev *domain.Event) (res domain.Result, err error) {
	start := time.Now()
	defer func() {
		enforcementEventsCounter.WithLabelValues(string(ev.Kind), string(res.Outcome)).Inc()
		handleDurationHist.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())
	}()

	extract, ok := e.extractors[ev.Kind]
	if !ok {
		return ignored("unknown event kind"), nil
	}
	if ev.Private {
		return ignored("private chat"), nil
	}

	if ev.Kind == domain.KindMembership &&
		ev.Action != domain.ActionAdded && ev.Action != domain.ActionJoinedByLink {
		return ignored("membership action " + string(ev.Action)), nil
	}

	if !ev.Authority.CanBan() {
		return ignored("no ban rights"), nil
	}

	tags, err := e.tags.TagsFor(ctx, ev.ChatID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to read chat tags", "chat_id", ev.ChatID, "error", err)
		return domain.Result{Outcome: domain.OutcomeError}, fmt.Errorf("reading tags of chat %d: %w", ev.ChatID, err)
	}
	if tags[tagPolizei] == tagExclude || tags[tagGrenzschutz] == tagExclude {
		return ignored("chat opted out"), nil
	}
	silent := tags[tagGrenzschutz] == tagSilent

	subject := extract(ev)
	if subject == nil {
		return ignored("no subject"), nil
	}
	uid := *subject
	if e.cfg.SelfID != 0 && uid == e.cfg.SelfID {
		return ignored("subject is self"), nil
	}

	ban, err := e.bans.Get(ctx, uid)
	switch {
	case errors.Is(err, bandomain.ErrNotFound):
		ban = nil
	case err != nil:
		e.logger.ErrorContext(ctx, "Ban lookup failed", "user_id", uid, "error", err)
		return domain.Result{Outcome: domain.OutcomeError, UserID: uid}, fmt.Errorf("looking up ban of %d: %w", uid, err)
	}

	var hit *domain.DenylistHit
	if ban == nil {
		if e.matcher != nil && !ev.IsBot {
			hit, err = e.matcher.Match(ctx, ev, uid)
			if err != nil {
				e.logger.ErrorContext(ctx, "Denylist check failed", "chat_id", ev.ChatID, "user_id", uid, "error", err)
				return domain.Result{Outcome: domain.OutcomeError, UserID: uid}, fmt.Errorf("checking denylists for %d: %w", uid, err)
			}
		}
		if hit == nil {
			return domain.Result{Outcome: domain.OutcomeNotBanned, UserID: uid}, nil
		}
		res = domain.Result{UserID: uid, Reason: hit.Reason()}
	} else {
		res = domain.Result{UserID: uid, Reason: ban.Reason}
	}

	admins, err := e.platform.AdminIDs(ctx, ev.ChatID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to fetch chat admins", "chat_id", ev.ChatID, "error", err)
		res.Outcome = domain.OutcomeError
		return res, fmt.Errorf("%w: fetching admins of %d: %v", domain.ErrPlatformActionFailed, ev.ChatID, err)
	}
	if slices.Contains(admins, uid) {
		e.logger.InfoContext(ctx, "Banned user is a chat admin, not banning", "chat_id", ev.ChatID, "user_id", uid, "reason", res.Reason)
		res.Outcome = domain.OutcomeAdminExempt
		return res, nil
	}

	if hit != nil {
		ban, err = e.writer.GlobalBan(ctx, uid, res.Reason, ev.Text)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to record denylist ban", "user_id", uid, "reason", res.Reason, "error", err)
			res.Outcome = domain.OutcomeError
			return res, fmt.Errorf("recording denylist ban of %d: %w", uid, err)
		}
		e.logger.InfoContext(ctx, "Denylist hit, user globally banned", "chat_id", ev.ChatID, "user_id", uid,
			"category", hit.Category.String(), "index", hit.Index)
		res.Reason = ban.Reason
	}

	if err := e.platform.Ban(ctx, ev.ChatID, uid); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyBanned):
			e.logger.DebugContext(ctx, "User was already banned", "chat_id", ev.ChatID, "user_id", uid)
		case errors.Is(err, domain.ErrInvalidUserID):
			e.logger.ErrorContext(ctx, "Error occurred while banning", "chat_id", ev.ChatID, "user_id", uid, "error", err)
			res.Outcome = domain.OutcomeBanFailed
			return res, nil
		default:
			e.logger.ErrorContext(ctx, "Ban failed", "chat_id", ev.ChatID, "user_id", uid, "error", err)
			res.Outcome = domain.OutcomeBanFailed
			if errors.Is(err, domain.ErrPlatformActionFailed) {
				return res, err
			}
			return res, fmt.Errorf("%w: banning %d in %d: %v", domain.ErrPlatformActionFailed, uid, ev.ChatID, err)
		}
	}
	e.logger.InfoContext(ctx, "Banned globally banned user", "chat_id", ev.ChatID, "user_id", uid, "reason", ban.Reason)

	if ev.MessageID != 0 {
		if err := e.platform.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
			e.logger.WarnContext(ctx, "Failed to delete triggering message", "chat_id", ev.ChatID, "message_id", ev.MessageID, "error", err)
		}
	}

	res.Outcome = domain.OutcomeBanned
	if silent {
		return res, nil
	}
	if e.guard != nil {
		first, err := e.guard.Acquire(ctx, ev.ChatID, uid)
		if err != nil {
			e.logger.WarnContext(ctx, "Notify guard unavailable", "chat_id", ev.ChatID, "user_id", uid, "error", err)
		} else if !first {
			return res, nil
		}
	}
	text := notificationText(ev.UserName, uid, ban.Reason)
	if err := e.platform.SendMessage(ctx, ev.ChatID, text, e.cfg.NotifyDeleteAfter); err != nil {
		e.logger.WarnContext(ctx, "Failed to send ban notification", "chat_id", ev.ChatID, "user_id", uid, "error", err)
	}
	return res, nil
}

func ignored(detail string) domain.Result {
	return domain.Result{Outcome: domain.OutcomeIgnored, Detail: detail}
}

func notificationText(name string, uid int64, reason string) string {
	id := strconv.FormatInt(uid, 10)
	var b strings.Builder
	b.WriteString("SpamWatch Grenzschutz Ban\n")
	if name != "" {
		b.WriteString("User: " + name + " [" + id + "]\n")
	} else {
		b.WriteString("User: [" + id + "]\n")
	}
	b.WriteString("Reason: " + reason)
	return b.String()
}
