package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/banlist_service/repository"
	"github.com/autobahn/moderation/internal/platform/database"
)

const selectColumns = `SELECT id, reason, date, message FROM banlist`

const upsertFromBatchSQL = `INSERT INTO banlist (id, reason, date, message)
SELECT id, reason, date, message FROM _ban_batch
ON CONFLICT (id) DO UPDATE SET reason = excluded.reason, date = excluded.date,
	message = COALESCE(excluded.message, banlist.message)`

var batchColumns = []string{"id", "reason", "date", "message"}

type PgBanRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

var _ repository.BanRepository = (*PgBanRepository)(nil)

func NewPgBanRepository(db database.DBTX, logger *slog.Logger) *PgBanRepository {
	return &PgBanRepository{db: db, logger: logger.With("component", "ban_repository_pg")}
}

func (r *PgBanRepository) Get(ctx context.Context, id int64) (*domain.BannedUser, error) {
	user, err := scanBannedUser(r.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting banned user", "user_id", id, "error", err)
		return nil, fmt.Errorf("getting banned user %d: %w", id, err)
	}
	return user, nil
}

func (r *PgBanRepository) GetMultiple(ctx context.Context, ids []int64) ([]domain.BannedUser, error) {
	if len(ids) == 0 {
		return []domain.BannedUser{}, nil
	}
	return r.query(ctx, selectColumns+` WHERE id = ANY($1::BIGINT[])`, ids)
}

func (r *PgBanRepository) GetAll(ctx context.Context) ([]domain.BannedUser, error) {
	return r.query(ctx, selectColumns+` ORDER BY id`)
}

func (r *PgBanRepository) GetAllNotIn(ctx context.Context, excluded []int64) ([]domain.BannedUser, error) {
	// A NULL array would make the predicate NULL for every row.
	if excluded == nil {
		excluded = []int64{}
	}
	return r.query(ctx, selectColumns+` WHERE NOT (id = ANY($1::BIGINT[])) ORDER BY id`, excluded)
}

func (r *PgBanRepository) CountReason(ctx context.Context, reason string) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM banlist WHERE reason = $1`, reason).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting bans for reason: %w", err)
	}
	return count, nil
}

func (r *PgBanRepository) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM banlist`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting bans: %w", err)
	}
	return count, nil
}

// UpsertMultiple copies the batch into a temporary table and merges it into
// banlist in one statement, all inside a single transaction.
func (r *PgBanRepository) UpsertMultiple(ctx context.Context, records []domain.BannedUser) error {
	if err := domain.ValidateBatch(records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := domain.DedupeLastWins(records)
	now := time.Now().UTC()
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		at := rec.RecordedAt
		if at.IsZero() {
			at = now
		}
		rows = append(rows, []any{rec.ID, rec.Reason, at, rec.Message})
	}

	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `CREATE TEMPORARY TABLE _ban_batch (id BIGINT, reason TEXT, date TIMESTAMPTZ, message TEXT) ON COMMIT DROP`); err != nil {
			return fmt.Errorf("creating batch table: %w", err)
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{"_ban_batch"}, batchColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copying batch: %w", err)
		}
		if copied != int64(len(rows)) {
			return fmt.Errorf("copying batch: copied %d of %d rows", copied, len(rows))
		}
		if _, err := tx.Exec(ctx, upsertFromBatchSQL); err != nil {
			return fmt.Errorf("merging batch: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Ban batch upsert failed", "records", len(rows), "error", err)
		return err
	}
	r.logger.InfoContext(ctx, "Ban batch upserted", "records", len(rows))
	return nil
}

func (r *PgBanRepository) Remove(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM banlist WHERE id = $1`, id); err != nil {
		r.logger.ErrorContext(ctx, "Error removing ban", "user_id", id, "error", err)
		return fmt.Errorf("removing ban %d: %w", id, err)
	}
	return nil
}

func (r *PgBanRepository) query(ctx context.Context, query string, args ...any) ([]domain.BannedUser, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying banlist", "error", err)
		return nil, fmt.Errorf("querying banlist: %w", err)
	}
	defer rows.Close()

	users := make([]domain.BannedUser, 0)
	for rows.Next() {
		user, err := scanBannedUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning banned user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating banlist: %w", err)
	}
	return users, nil
}

func scanBannedUser(row pgx.Row) (*domain.BannedUser, error) {
	var (
		user    domain.BannedUser
		message pgtype.Text
	)
	if err := row.Scan(&user.ID, &user.Reason, &user.RecordedAt, &message); err != nil {
		return nil, err
	}
	if message.Valid {
		user.Message = &message.String
	}
	return &user, nil
}
