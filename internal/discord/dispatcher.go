package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/domain"
)

// Dispatcher wraps a Sink with the delivery policy: a steady-state rate
// limit before every attempt, transparent waits on throttle signals, and a
// bounded backoff schedule for transient failures.
//
// Ordering guarantee: Deliver never gives up on a throttled payload and
// never reorders — the caller moves to the next item only after this
// payload succeeded or failed permanently.
type Dispatcher struct {
	sink       Sink
	limiter    *rate.Limiter
	backoff    []time.Duration
	maxRetries int
	logger     *zap.Logger
}

func NewDispatcher(sink Sink, cfg config.DiscordConfig, logger *zap.Logger) *Dispatcher {
	r := rate.Limit(cfg.RatePerSecond)
	burst := cfg.RatePerSecond // burst == rate: no saved-up burst above the limit
	if burst < 1 {
		r, burst = rate.Inf, 1
	}
	return &Dispatcher{
		sink:       sink,
		limiter:    rate.NewLimiter(r, burst),
		backoff:    cfg.RetryBackoff,
		maxRetries: cfg.MaxSendRetries,
		logger:     logger,
	}
}

// Deliver sends one payload to completion. Return values:
//
//	nil                        delivered; exactly one message is in the channel
//	domain.ErrRejected (wrapped)  permanent per-item failure, not retried
//	domain.ErrTransient (wrapped) retries exhausted, per-item failure
//	ctx.Err()                  cancelled mid-wait; nothing was dropped,
//	                           the item simply stays unannounced
func (d *Dispatcher) Deliver(ctx context.Context, payload domain.Payload) error {
	transientAttempts := 0

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		err := d.sink.Send(ctx, payload)
		if err == nil {
			return nil
		}

		var throttled *domain.ThrottledError
		switch {
		case errors.As(err, &throttled):
			// Same payload, after the endpoint's own pause. Throttling is
			// not a failure and does not consume a retry attempt.
			d.logger.Warn("sink throttled",
				zap.Duration("retry_after", throttled.RetryAfter))
			if err := sleepCtx(ctx, throttled.RetryAfter); err != nil {
				return err
			}

		case errors.Is(err, domain.ErrTransient):
			if transientAttempts >= d.maxRetries {
				return fmt.Errorf("retries exhausted after %d attempts: %w", transientAttempts, err)
			}
			wait := d.backoffFor(transientAttempts)
			transientAttempts++
			d.logger.Warn("transient delivery failure, backing off",
				zap.Error(err),
				zap.Int("attempt", transientAttempts),
				zap.Duration("backoff", wait))
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}

		default:
			// Rejected or unclassified: surfaced immediately, no retry.
			return err
		}
	}
}

// backoffFor clamps the schedule: attempts beyond the configured slice use
// the last entry.
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	if len(d.backoff) == 0 {
		return time.Second
	}
	if attempt >= len(d.backoff) {
		attempt = len(d.backoff) - 1
	}
	return d.backoff[attempt]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
