package discord

import (
	"context"

	"github.com/plexwatch/announcer/internal/domain"
)

// Sink abstracts delivery of one payload to the notification endpoint.
// Implementations classify failures into the domain taxonomy:
// *domain.ThrottledError, domain.ErrTransient, domain.ErrRejected.
// Mocking this interface in tests gives full control over sink behaviour
// without making real HTTP calls.
type Sink interface {
	Send(ctx context.Context, payload domain.Payload) error
}
