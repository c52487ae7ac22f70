package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/banlist_service/repository"
)

// DefaultReason is used when a global ban is issued without a reason.
const DefaultReason = "spam[gban]"

// BanlistService issues and lifts global bans and answers registry queries.
// The local registry is the source of truth; the authority and the event
// stream are told afterwards and their failures never undo a local change.
type BanlistService struct {
	repo          repository.BanRepository
	authority     Authority
	publisher     EventPublisher
	subjectPrefix string
	adminID       int64
	logger        *slog.Logger
	now           func() time.Time
}

// NewBanlistService creates a BanlistService. authority and publisher may be nil.
func NewBanlistService(repo repository.BanRepository, authority Authority, publisher EventPublisher, subjectPrefix string, adminID int64, logger *slog.Logger) *BanlistService {
	return &BanlistService{
		repo:          repo,
		authority:     authority,
		publisher:     publisher,
		subjectPrefix: subjectPrefix,
		adminID:       adminID,
		logger:        logger.With("service", "banlist"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GlobalBan records a ban for id. An existing automated ban is never
// overwritten, and "spam adding N+ members" counts accumulate.
func (s *BanlistService) GlobalBan(ctx context.Context, id int64, reason, message string) (*domain.BannedUser, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: user id %d", domain.ErrInvalidInput, id)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}

	existing, err := s.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("looking up user %d: %w", id, err)
	}
	if existing != nil {
		if domain.IsAutomated(existing.Reason) {
			globalBansCounter.WithLabelValues("ban", "refused").Inc()
			return nil, fmt.Errorf("%w: %s", domain.ErrAutomatedBan, existing.Reason)
		}
		reason = domain.MergeReason(existing.Reason, reason)
	}

	record := domain.BannedUser{ID: id, Reason: reason, RecordedAt: s.now()}
	if message != "" {
		record.Message = &message
	}
	if err := s.repo.UpsertMultiple(ctx, []domain.BannedUser{record}); err != nil {
		globalBansCounter.WithLabelValues("ban", "error").Inc()
		return nil, fmt.Errorf("recording ban for %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "User globally banned", "user_id", id, "reason", reason)
	globalBansCounter.WithLabelValues("ban", "success").Inc()

	if s.authorityWritable(ctx) {
		ban := domain.AuthorityBan{ID: id, Reason: reason, Message: message, Admin: s.adminID}
		if err := s.authority.AddBans(ctx, []domain.AuthorityBan{ban}); err != nil {
			s.logger.WarnContext(ctx, "Pushing ban to authority failed", "user_id", id, "error", err)
		}
	}
	s.publish(ctx, "added", domain.BanEvent{UserID: id, Reason: reason})
	return &record, nil
}

// GlobalUnban lifts the ban for id. It reports false when id was not banned.
func (s *BanlistService) GlobalUnban(ctx context.Context, id int64) (bool, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("looking up user %d: %w", id, err)
	}
	if err := s.repo.Remove(ctx, id); err != nil {
		globalBansCounter.WithLabelValues("unban", "error").Inc()
		return false, fmt.Errorf("removing ban for %d: %w", id, err)
	}
	s.logger.InfoContext(ctx, "User globally unbanned", "user_id", id)
	globalBansCounter.WithLabelValues("unban", "success").Inc()

	if s.authorityWritable(ctx) {
		if err := s.authority.DeleteBan(ctx, id); err != nil {
			s.logger.WarnContext(ctx, "Deleting ban at authority failed", "user_id", id, "error", err)
		}
	}
	s.publish(ctx, "removed", domain.BanEvent{UserID: id})
	return true, nil
}

// Lookup returns the records of the banned users among ids.
func (s *BanlistService) Lookup(ctx context.Context, ids []int64) ([]domain.BannedUser, error) {
	return s.repo.GetMultiple(ctx, ids)
}

func (s *BanlistService) CountReason(ctx context.Context, reason string) (int64, error) {
	return s.repo.CountReason(ctx, reason)
}

func (s *BanlistService) TotalCount(ctx context.Context) (int64, error) {
	return s.repo.TotalCount(ctx)
}

func (s *BanlistService) authorityWritable(ctx context.Context) bool {
	return canPush(ctx, s.authority, s.logger)
}

func canPush(ctx context.Context, authority Authority, logger *slog.Logger) bool {
	if authority == nil {
		return false
	}
	perm, err := authority.Permission(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Could not read authority permission", "error", err)
		return false
	}
	return perm.CanWrite()
}

func (s *BanlistService) publish(ctx context.Context, action string, event domain.BanEvent) {
	if s.publisher == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.Action = action
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal ban event", "error", err)
		return
	}
	subject := s.subjectPrefix + "." + action
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ban event", "subject", subject, "user_id", event.UserID, "error", err)
	}
}
