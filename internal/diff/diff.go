// Package diff computes the ordered set of newly-added items in a snapshot
// relative to the durable seen set. Pure computation over already-validated
// data: it cannot fail.
package diff

import (
	"sort"

	"github.com/plexwatch/announcer/internal/domain"
)

// New returns the items of snapshot whose identifier is not in seen, sorted
// by added-timestamp ascending so multi-item cycles announce in insertion
// order. Ties break on ID to keep the order deterministic for identical
// snapshots. Identity is solely the identifier: an item already in seen is
// excluded even if every other field changed.
func New(snapshot *domain.Snapshot, seen domain.SeenSet) []domain.Item {
	var fresh []domain.Item
	for _, item := range snapshot.Items {
		if seen.Contains(item.ID) {
			continue
		}
		fresh = append(fresh, item)
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		if fresh[i].AddedAt.Equal(fresh[j].AddedAt) {
			return fresh[i].ID < fresh[j].ID
		}
		return fresh[i].AddedAt.Before(fresh[j].AddedAt)
	})

	return fresh
}

// Merge concatenates the items of several snapshots into one combined
// snapshot so multi-section cycles diff and dispatch as a single ordered
// sequence.
func Merge(snapshots []*domain.Snapshot) *domain.Snapshot {
	merged := &domain.Snapshot{}
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		if merged.FetchedAt.IsZero() || s.FetchedAt.Before(merged.FetchedAt) {
			merged.FetchedAt = s.FetchedAt
		}
		merged.Items = append(merged.Items, s.Items...)
	}
	return merged
}
