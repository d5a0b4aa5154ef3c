package plex

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/domain"
)

// BreakerSource wraps a Source with a circuit breaker so a down or slow
// Plex server stops being hammered every poll. An open circuit surfaces as
// ErrSourceUnavailable, which the scheduler already treats as a
// backoff-and-retry-next-tick condition.
type BreakerSource struct {
	inner Source
	cb    *gobreaker.CircuitBreaker[*domain.Snapshot]
}

func NewBreakerSource(inner Source, cfg config.PlexConfig, logger *zap.Logger) *BreakerSource {
	cb := gobreaker.NewCircuitBreaker[*domain.Snapshot](gobreaker.Settings{
		Name:    "plex-api",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("source circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Malformed data is the server answering; only availability
			// failures should trip the breaker.
			return err == nil || errors.Is(err, domain.ErrSourceMalformed)
		},
	})

	return &BreakerSource{inner: inner, cb: cb}
}

func (b *BreakerSource) Fetch(ctx context.Context, section string) (*domain.Snapshot, error) {
	snap, err := b.cb.Execute(func() (*domain.Snapshot, error) {
		return b.inner.Fetch(ctx, section)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	return snap, nil
}

var _ Source = (*BreakerSource)(nil)
