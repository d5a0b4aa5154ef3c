package diff_test

import (
	"testing"
	"time"

	"github.com/plexwatch/announcer/internal/diff"
	"github.com/plexwatch/announcer/internal/domain"
)

func item(id string, added time.Time) domain.Item {
	return domain.Item{
		ID:      id,
		Kind:    domain.KindMovie,
		Title:   "Title " + id,
		AddedAt: added,
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestNew_ExcludesSeen(t *testing.T) {
	now := time.Now()
	snap := &domain.Snapshot{Items: []domain.Item{
		item("1", now),
		item("2", now.Add(time.Minute)),
	}}
	seen := domain.SeenSet{"1": {}}

	fresh := diff.New(snap, seen)
	if len(fresh) != 1 || fresh[0].ID != "2" {
		t.Fatalf("expected only item 2, got %v", ids(fresh))
	}
}

// TestNew_OrderedByAddedAt verifies the insertion-order guarantee: given
// three new items with T1<T2<T3, the result is [T1,T2,T3] regardless of
// the fetch-response order.
func TestNew_OrderedByAddedAt(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{Items: []domain.Item{
		item("c", base.Add(2*time.Hour)), // T3
		item("a", base),                  // T1
		item("b", base.Add(time.Hour)),   // T2
	}}

	fresh := diff.New(snap, domain.SeenSet{})
	got := ids(fresh)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestNew_DeterministicTieBreak(t *testing.T) {
	same := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{Items: []domain.Item{
		item("z", same),
		item("a", same),
	}}

	fresh := diff.New(snap, domain.SeenSet{})
	if fresh[0].ID != "a" || fresh[1].ID != "z" {
		t.Fatalf("expected tie broken by ID, got %v", ids(fresh))
	}
}

// TestNew_Idempotent verifies that diffing the same snapshot twice, with
// the first result folded into seen, yields nothing the second time.
func TestNew_Idempotent(t *testing.T) {
	now := time.Now()
	snap := &domain.Snapshot{Items: []domain.Item{
		item("1", now),
		item("2", now.Add(time.Second)),
	}}

	seen := domain.SeenSet{}
	first := diff.New(snap, seen)
	for _, it := range first {
		seen.Add(it.ID)
	}

	second := diff.New(snap, seen)
	if len(second) != 0 {
		t.Fatalf("expected empty second diff, got %v", ids(second))
	}
}

// TestNew_MetadataChangeDoesNotReannounce: identity is solely the
// identifier; a seen item with edited metadata stays excluded.
func TestNew_MetadataChangeDoesNotReannounce(t *testing.T) {
	edited := item("1", time.Now())
	edited.Title = "Renamed After Announcement"
	snap := &domain.Snapshot{Items: []domain.Item{edited}}

	fresh := diff.New(snap, domain.SeenSet{"1": {}})
	if len(fresh) != 0 {
		t.Fatalf("expected no re-announcement on metadata edit, got %v", ids(fresh))
	}
}

func TestNew_EmptySnapshot(t *testing.T) {
	fresh := diff.New(&domain.Snapshot{}, domain.SeenSet{"1": {}})
	if len(fresh) != 0 {
		t.Fatalf("expected empty result, got %v", ids(fresh))
	}
}

func TestMerge_CombinesSections(t *testing.T) {
	now := time.Now()
	a := &domain.Snapshot{Section: "Movies", FetchedAt: now, Items: []domain.Item{item("1", now)}}
	b := &domain.Snapshot{Section: "TV Shows", FetchedAt: now, Items: []domain.Item{item("2", now)}}

	merged := diff.Merge([]*domain.Snapshot{a, b, nil})
	if len(merged.Items) != 2 {
		t.Fatalf("expected 2 merged items, got %d", len(merged.Items))
	}
}
