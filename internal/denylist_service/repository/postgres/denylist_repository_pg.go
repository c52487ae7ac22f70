package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
	"github.com/autobahn/moderation/internal/denylist_service/repository"
	"github.com/autobahn/moderation/internal/platform/database"
)

// PgDenylistRepository stores every category in its own blacklists.<name> table.
// Indices come from each table's BIGSERIAL, so they are never reused.
type PgDenylistRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

var _ repository.DenylistRepository = (*PgDenylistRepository)(nil)

func NewPgDenylistRepository(db database.DBTX, logger *slog.Logger) *PgDenylistRepository {
	return &PgDenylistRepository{db: db, logger: logger.With("component", "denylist_repository_pg")}
}

// tableFor derives the table name from the enum only; user input never reaches it.
func tableFor(category domain.Category) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownCategory, category)
	}
	return pgx.Identifier{"blacklists", category.String()}.Sanitize(), nil
}

// advisoryKey maps (category, value) onto the int64 keyspace of pg advisory locks.
func advisoryKey(category domain.Category, value string) int64 {
	h := fnv.New64a()
	h.Write([]byte("denylist:" + category.String() + ":" + value))
	return int64(h.Sum64())
}

func (r *PgDenylistRepository) Add(ctx context.Context, category domain.Category, value string) (*domain.Entry, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	entry, err := insertEntry(ctx, r.db, table, category, value)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error adding denylist entry", "category", category.String(), "error", err)
		return nil, err
	}
	r.logger.InfoContext(ctx, "Denylist entry added", "category", category.String(), "index", entry.Index)
	return entry, nil
}

func (r *PgDenylistRepository) Ensure(ctx context.Context, category domain.Category, value string) (*domain.Entry, bool, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, false, err
	}

	var (
		entry   *domain.Entry
		created bool
	)
	err = database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		// Serializes concurrent Ensure calls for the same value until commit.
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(category, value)); err != nil {
			return fmt.Errorf("acquiring advisory lock: %w", err)
		}

		existing, err := selectActive(ctx, tx, table, category, value)
		if err == nil {
			entry = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		entry, err = insertEntry(ctx, tx, table, category, value)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Error ensuring denylist entry", "category", category.String(), "error", err)
		return nil, false, err
	}
	return entry, created, nil
}

func (r *PgDenylistRepository) GetByValue(ctx context.Context, category domain.Category, value string) (*domain.Entry, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	return selectActive(ctx, r.db, table, category, value)
}

func (r *PgDenylistRepository) Get(ctx context.Context, category domain.Category, index int64) (*domain.Entry, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, item, retired FROM ` + table + ` WHERE id = $1`

	entry := domain.Entry{Category: category}
	err = r.db.QueryRow(ctx, query, index).Scan(&entry.Index, &entry.Value, &entry.Retired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s entry %d: %w", category, index, err)
	}
	return &entry, nil
}

func (r *PgDenylistRepository) Retire(ctx context.Context, category domain.Category, value string) (int64, error) {
	table, err := tableFor(category)
	if err != nil {
		return 0, err
	}
	// Retires every active duplicate a plain Add may have produced.
	query := `WITH retired AS (
		UPDATE ` + table + ` SET retired = TRUE WHERE item = $1 AND NOT retired RETURNING id
	) SELECT min(id) FROM retired`

	var index pgtype.Int8
	if err := r.db.QueryRow(ctx, query, value).Scan(&index); err != nil {
		return 0, fmt.Errorf("retiring %s entry: %w", category, err)
	}
	if !index.Valid {
		return 0, domain.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Denylist entry retired", "category", category.String(), "index", index.Int64)
	return index.Int64, nil
}

func (r *PgDenylistRepository) GetAll(ctx context.Context, category domain.Category) ([]domain.Entry, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, item, retired FROM ` + table + ` WHERE NOT retired ORDER BY id`
	return r.queryEntries(ctx, category, query)
}

func (r *PgDenylistRepository) GetIndices(ctx context.Context, category domain.Category, indices []int64) ([]domain.Entry, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return []domain.Entry{}, nil
	}
	query := `SELECT id, item, retired FROM ` + table + ` WHERE id = ANY($1::BIGINT[]) ORDER BY id`
	return r.queryEntries(ctx, category, query, indices)
}

func (r *PgDenylistRepository) Count(ctx context.Context, category domain.Category) (int64, error) {
	table, err := tableFor(category)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM `+table+` WHERE NOT retired`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s entries: %w", category, err)
	}
	return count, nil
}

func (r *PgDenylistRepository) queryEntries(ctx context.Context, category domain.Category, query string, args ...any) ([]domain.Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying denylist", "category", category.String(), "error", err)
		return nil, fmt.Errorf("querying %s entries: %w", category, err)
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0)
	for rows.Next() {
		entry := domain.Entry{Category: category}
		if err := rows.Scan(&entry.Index, &entry.Value, &entry.Retired); err != nil {
			return nil, fmt.Errorf("scanning %s entry: %w", category, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s entries: %w", category, err)
	}
	return entries, nil
}

func selectActive(ctx context.Context, q database.DBTX, table string, category domain.Category, value string) (*domain.Entry, error) {
	query := `SELECT id, item, retired FROM ` + table + ` WHERE item = $1 AND NOT retired ORDER BY id LIMIT 1`

	entry := domain.Entry{Category: category}
	err := q.QueryRow(ctx, query, value).Scan(&entry.Index, &entry.Value, &entry.Retired)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("looking up %s value: %w", category, err)
	}
	return &entry, nil
}

func insertEntry(ctx context.Context, q database.DBTX, table string, category domain.Category, value string) (*domain.Entry, error) {
	query := `INSERT INTO ` + table + ` (item) VALUES ($1) RETURNING id`

	var index int64
	if err := q.QueryRow(ctx, query, value).Scan(&index); err != nil {
		return nil, fmt.Errorf("inserting %s entry: %w", category, err)
	}
	return &domain.Entry{Index: index, Category: category, Value: value}, nil
}
