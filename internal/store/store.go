package store

import (
	"context"

	"github.com/plexwatch/announcer/internal/domain"
)

// SeenStore persists the set of item identifiers already announced.
// The pgx implementation is in pg_seen_store.go; tests use a hand-written
// mock (mock_seen_store.go).
//
// Commit must be atomic with respect to process crash: either every id in
// the batch becomes durable or none does. A partial commit after a
// successful dispatch would duplicate announcements on the next cycle.
type SeenStore interface {
	Load(ctx context.Context) (domain.SeenSet, error)
	Commit(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int64, error)

	// Reset clears the whole set. Operator-initiated only; every library
	// item is re-announced afterwards.
	Reset(ctx context.Context) (int64, error)
}
