package store

import (
	"context"
	"sync"

	"github.com/plexwatch/announcer/internal/domain"
)

// MockSeenStore is a hand-written, in-memory SeenStore used in unit tests.
// No mock-generation library needed.
type MockSeenStore struct {
	mu   sync.RWMutex
	seen domain.SeenSet

	// Optional error overrides — set in tests to simulate failure paths.
	LoadErr   error
	CommitErr error

	// Commits records every batch passed to Commit, in order, so tests can
	// assert on commit atomicity and content.
	Commits [][]string
}

func NewMockSeenStore() *MockSeenStore {
	return &MockSeenStore{seen: make(domain.SeenSet)}
}

func (m *MockSeenStore) Load(_ context.Context) (domain.SeenSet, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := make(domain.SeenSet, len(m.seen))
	for id := range m.seen {
		clone.Add(id)
	}
	return clone, nil
}

func (m *MockSeenStore) Commit(_ context.Context, ids []string) error {
	if m.CommitErr != nil {
		// All-or-nothing: a failed commit leaves the set untouched.
		return m.CommitErr
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]string, len(ids))
	copy(batch, ids)
	m.Commits = append(m.Commits, batch)
	for _, id := range ids {
		m.seen.Add(id)
	}
	return nil
}

func (m *MockSeenStore) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.seen)), nil
}

func (m *MockSeenStore) Reset(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.seen))
	m.seen = make(domain.SeenSet)
	return n, nil
}

// Seed marks ids as already announced without going through Commit.
func (m *MockSeenStore) Seed(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.seen.Add(id)
	}
}

var _ SeenStore = (*MockSeenStore)(nil)
