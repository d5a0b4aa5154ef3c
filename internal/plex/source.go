package plex

import (
	"context"

	"github.com/plexwatch/announcer/internal/domain"
)

// Source abstracts the library snapshot fetch. Mocking this interface in
// tests gives full control over source behaviour without real HTTP calls.
type Source interface {
	// Fetch returns the current snapshot of one library section. The call
	// is side-effect-free aside from the outbound query.
	Fetch(ctx context.Context, section string) (*domain.Snapshot, error)
}
