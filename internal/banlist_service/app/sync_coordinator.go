package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/banlist_service/repository"
)

// DefaultChunkSize is the largest batch the authority accepts.
const DefaultChunkSize = 50

// ErrArchiveDisabled is returned by Archive when no snapshot store is configured.
var ErrArchiveDisabled = errors.New("snapshot archive is not configured")

var exportHeader = []string{"id", "reason"}

type SyncConfig struct {
	ChunkSize      int
	ChunkPause     time.Duration
	AdminID        int64
	SnapshotPrefix string
}

// ImportResult summarizes one import. Count is the number of valid rows
// processed, Persisted the number of distinct ids written.
type ImportResult struct {
	Count        int           `json:"count"`
	Skipped      int           `json:"skipped"`
	Persisted    int           `json:"persisted"`
	Pushed       int           `json:"pushed"`
	FailedChunks int           `json:"failed_chunks"`
	Elapsed      time.Duration `json:"elapsed"`
}

// SyncCoordinator imports and exports registry snapshots and mirrors imports
// to the external authority.
type SyncCoordinator struct {
	repo      repository.BanRepository
	authority Authority
	archive   SnapshotStore
	cfg       SyncConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewSyncCoordinator creates a SyncCoordinator. authority and archive may be nil.
func NewSyncCoordinator(repo repository.BanRepository, authority Authority, archive SnapshotStore, cfg SyncConfig, logger *slog.Logger) *SyncCoordinator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &SyncCoordinator{
		repo:      repo,
		authority: authority,
		archive:   archive,
		cfg:       cfg,
		logger:    logger.With("service", "banlist_sync"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Import reads an id,reason CSV (header first, id in the first column and
// reason in the last) and merges it into the registry. Malformed rows are
// skipped.
func (c *SyncCoordinator) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	start := time.Now()
	records, skipped, err := parseBanCSV(r)
	if err != nil {
		return nil, err
	}
	result, err := c.importRecords(ctx, records, start)
	if err != nil {
		return nil, err
	}
	result.Skipped = skipped
	importRowsCounter.WithLabelValues("skipped").Add(float64(skipped))
	if skipped > 0 {
		c.logger.WarnContext(ctx, "Skipped malformed CSV rows", "skipped", skipped)
	}
	return result, nil
}

// ImportRecords merges already parsed records. Any invalid record fails the
// whole batch.
func (c *SyncCoordinator) ImportRecords(ctx context.Context, records []domain.BannedUser) (*ImportResult, error) {
	return c.importRecords(ctx, records, time.Now())
}

func (c *SyncCoordinator) importRecords(ctx context.Context, records []domain.BannedUser, start time.Time) (*ImportResult, error) {
	if err := domain.ValidateBatch(records); err != nil {
		return nil, err
	}
	result := &ImportResult{Count: len(records)}
	importRowsCounter.WithLabelValues("accepted").Add(float64(len(records)))

	batch := domain.DedupeLastWins(records)
	if len(batch) > 0 {
		now := c.now()
		for i := range batch {
			if batch[i].RecordedAt.IsZero() {
				batch[i].RecordedAt = now
			}
		}
		if err := c.repo.UpsertMultiple(ctx, batch); err != nil {
			c.logger.ErrorContext(ctx, "Banlist import failed", "records", len(batch), "error", err)
			return nil, fmt.Errorf("importing banlist: %w", err)
		}
	}
	result.Persisted = len(batch)

	if len(batch) > 0 && canPush(ctx, c.authority, c.logger) {
		result.Pushed, result.FailedChunks = c.push(ctx, batch)
	}

	result.Elapsed = time.Since(start)
	importDurationHist.Observe(result.Elapsed.Seconds())
	c.logger.InfoContext(ctx, "Banlist import finished",
		"count", result.Count, "persisted", result.Persisted,
		"pushed", result.Pushed, "failed_chunks", result.FailedChunks,
		"elapsed", result.Elapsed)
	return result, nil
}

// push sends the batch grouped by reason, in first-seen order, one chunk at a
// time. A failed chunk is logged and the next one is still attempted.
func (c *SyncCoordinator) push(ctx context.Context, batch []domain.BannedUser) (pushed, failed int) {
	var order []string
	groups := make(map[string][]domain.AuthorityBan)
	for _, rec := range batch {
		if _, ok := groups[rec.Reason]; !ok {
			order = append(order, rec.Reason)
		}
		groups[rec.Reason] = append(groups[rec.Reason], domain.AuthorityBan{ID: rec.ID, Reason: rec.Reason, Admin: c.cfg.AdminID})
	}

	first := true
	for _, reason := range order {
		bans := groups[reason]
		for len(bans) > 0 {
			n := min(c.cfg.ChunkSize, len(bans))
			chunk := bans[:n]
			bans = bans[n:]

			if !first && c.cfg.ChunkPause > 0 {
				select {
				case <-ctx.Done():
					c.logger.WarnContext(ctx, "Authority push interrupted", "error", ctx.Err())
					return pushed, failed
				case <-time.After(c.cfg.ChunkPause):
				}
			}
			first = false

			if err := c.authority.AddBans(ctx, chunk); err != nil {
				failed++
				authorityChunksCounter.WithLabelValues("error").Inc()
				c.logger.ErrorContext(ctx, "Authority rejected ban chunk", "reason", reason, "size", len(chunk), "error", err)
				continue
			}
			pushed += len(chunk)
			authorityChunksCounter.WithLabelValues("success").Inc()
		}
	}
	return pushed, failed
}

// Export writes the registry as id,reason CSV. With a non-nil diff only users
// whose id is not in diff are written.
func (c *SyncCoordinator) Export(ctx context.Context, w io.Writer, diff []int64) error {
	var (
		users []domain.BannedUser
		err   error
	)
	if diff != nil {
		users, err = c.repo.GetAllNotIn(ctx, diff)
	} else {
		users, err = c.repo.GetAll(ctx)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to load banlist for export", "error", err)
		return fmt.Errorf("fetching banlist for export: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, user := range users {
		if err := writer.Write([]string{strconv.FormatInt(user.ID, 10), user.Reason}); err != nil {
			return fmt.Errorf("writing CSV row for %d: %w", user.ID, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv writer error: %w", err)
	}
	c.logger.InfoContext(ctx, "Banlist exported", "rows", len(users), "diff", diff != nil)
	return nil
}

// ExportDiff exports the users missing from another installation's CSV.
func (c *SyncCoordinator) ExportDiff(ctx context.Context, w io.Writer, other io.Reader) error {
	records, _, err := parseBanCSV(other)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	return c.Export(ctx, w, ids)
}

// Archive stores a full export in the snapshot store and returns its location.
func (c *SyncCoordinator) Archive(ctx context.Context) (string, error) {
	if c.archive == nil {
		return "", ErrArchiveDisabled
	}
	var buf bytes.Buffer
	if err := c.Export(ctx, &buf, nil); err != nil {
		return "", err
	}
	key := c.cfg.SnapshotPrefix + c.now().Format("20060102T150405Z") + ".csv"
	location, err := c.archive.Put(ctx, key, buf.Bytes())
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to archive banlist", "key", key, "error", err)
		return "", fmt.Errorf("archiving banlist: %w", err)
	}
	c.logger.InfoContext(ctx, "Banlist archived", "location", location, "bytes", buf.Len())
	return location, nil
}

// parseBanCSV skips the header and returns the well-formed rows plus the
// number of rows whose id is not a positive integer.
func parseBanCSV(r io.Reader) ([]domain.BannedUser, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: reading CSV header: %v", domain.ErrInvalidInput, err)
	}

	var (
		records []domain.BannedUser
		skipped int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return nil, 0, fmt.Errorf("reading CSV: %w", err)
		}
		if len(row) < 2 {
			skipped++
			continue
		}
		id, err := domain.ParseUserID(row[0])
		if err != nil {
			skipped++
			continue
		}
		records = append(records, domain.BannedUser{ID: id, Reason: strings.TrimSpace(row[len(row)-1])})
	}
	return records, skipped, nil
}
