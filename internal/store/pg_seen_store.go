package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plexwatch/announcer/internal/domain"
)

type pgSeenStore struct {
	pool *pgxpool.Pool
}

// NewPgSeenStore returns a SeenStore backed by PostgreSQL.
func NewPgSeenStore(pool *pgxpool.Pool) SeenStore {
	return &pgSeenStore{pool: pool}
}

func (s *pgSeenStore) Load(ctx context.Context) (domain.SeenSet, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM seen_items`)
	if err != nil {
		return nil, fmt.Errorf("%w: load seen set: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	seen := make(domain.SeenSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan seen id: %v", domain.ErrStoreUnavailable, err)
		}
		seen.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read seen rows: %v", domain.ErrStoreUnavailable, err)
	}
	return seen, nil
}

// Commit inserts every id inside one transaction. ON CONFLICT DO NOTHING
// makes re-commits after a crash-recovery re-dispatch harmless.
func (s *pgSeenStore) Commit(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin commit: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `
			INSERT INTO seen_items (id) VALUES ($1)
			ON CONFLICT (id) DO NOTHING`, id); err != nil {
			return fmt.Errorf("%w: insert seen id: %v", domain.ErrStoreUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit seen set: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *pgSeenStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM seen_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count seen items: %v", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *pgSeenStore) Reset(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM seen_items`)
	if err != nil {
		return 0, fmt.Errorf("%w: reset seen set: %v", domain.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

var _ SeenStore = (*pgSeenStore)(nil)
