package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/relnotes/internal/platform/db"
)

// pgxPool is the subset of *pgxpool.Pool the repository uses.
type pgxPool interface {
	db.TxBeginner
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository provides PostgreSQL backed persistence for releases.
type Repository struct {
	pool pgxPool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a release and its items in ledger order.
func (r *Repository) Get(ctx context.Context, date string) (Release, error) {
	var (
		rel      Release
		civil    time.Time
		announce *time.Time
	)
	err := r.pool.QueryRow(ctx, `SELECT id, release_date, title, tldr, announced, announced_at, announced_by, created_at
FROM releases WHERE release_date = $1`, date).Scan(
		&rel.ID, &civil, &rel.Title, &rel.TLDR, &rel.Announced, &announce, &rel.AnnouncedBy, &rel.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Release{}, fmt.Errorf("%w: %s", ErrNotFound, date)
		}
		return Release{}, err
	}
	rel.Date = civil.Format(DateLayout)
	rel.AnnouncedAt = announce

	rows, err := r.pool.Query(ctx, `SELECT id, position, name, version, summary, status, voted_by, voted_at, carried_from
FROM release_items WHERE release_id = $1 ORDER BY position ASC`, rel.ID)
	if err != nil {
		return Release{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			item    LineItem
			status  string
			votedBy *string
		)
		if err := rows.Scan(&item.ID, &item.Position, &item.Name, &item.Version, &item.Summary, &status, &votedBy, &item.VotedAt, &item.CarriedFrom); err != nil {
			return Release{}, err
		}
		item.Status = Status(status)
		if votedBy != nil {
			item.VotedBy = *votedBy
		}
		rel.Items = append(rel.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Release{}, err
	}
	return rel, nil
}

// Save upserts releases and their items in a single repeatable-read transaction.
func (r *Repository) Save(ctx context.Context, releases ...Release) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, rel := range releases {
			if err := saveRelease(ctx, tx, rel); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListOpen returns dates of releases that have not been announced yet.
func (r *Repository) ListOpen(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT release_date FROM releases WHERE NOT announced ORDER BY release_date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, rows.Err()
}

func saveRelease(ctx context.Context, tx pgx.Tx, rel Release) error {
	for _, item := range rel.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("save release %s: %w", rel.Date, err)
		}
	}
	_, err := tx.Exec(ctx, `INSERT INTO releases (id, release_date, title, tldr, announced, announced_at, announced_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, tldr = EXCLUDED.tldr, announced = EXCLUDED.announced,
	announced_at = EXCLUDED.announced_at, announced_by = EXCLUDED.announced_by`,
		rel.ID, rel.Date, rel.Title, rel.TLDR, rel.Announced, rel.AnnouncedAt, rel.AnnouncedBy, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert release %s: %w", rel.Date, err)
	}
	for _, item := range rel.Items {
		_, err := tx.Exec(ctx, `INSERT INTO release_items (id, release_id, position, name, version, summary, status, voted_by, voted_at, carried_from)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, voted_by = EXCLUDED.voted_by, voted_at = EXCLUDED.voted_at,
	version = EXCLUDED.version, summary = EXCLUDED.summary`,
			item.ID, rel.ID, item.Position, item.Name, item.Version, item.Summary, string(item.Status), item.VotedBy, item.VotedAt, nullableUUID(item.CarriedFrom))
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", item.Name, err)
		}
	}
	return nil
}

func nullableUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return *id
}
