// Package scheduler drives the announcement pipeline on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/pipeline"
)

// CycleRunner is implemented by pipeline.Runner.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*pipeline.Report, error)
}

// Scheduler serializes cycles: one goroutine, one cycle at a time. Ticks
// that fire while a cycle is still running are absorbed by the ticker's
// one-slot buffer, so cycles never overlap and never queue up.
type Scheduler struct {
	runner       CycleRunner
	interval     time.Duration
	errorBackoff time.Duration
	maxFailures  int // consecutive cycle-level failures before giving up; 0 = never
	logger       *zap.Logger

	trigger chan struct{}

	mu      sync.RWMutex
	last    *pipeline.Report
	lastErr error
}

func New(runner CycleRunner, cfg config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:       runner,
		interval:     cfg.PollInterval,
		errorBackoff: cfg.ErrorBackoff,
		maxFailures:  cfg.MaxConsecutiveFailures,
		logger:       logger,
		trigger:      make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate cycle. Non-blocking; requests arriving
// while one is already pending coalesce into a single extra cycle.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Last returns the most recent cycle report and its cycle-level error, if
// any. Used by the ops status endpoint.
func (s *Scheduler) Last() (*pipeline.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.lastErr
}

// Run blocks until ctx is cancelled, executing one cycle immediately and
// then one per tick. A cycle-level failure logs, sleeps the error backoff,
// and resumes ticking with the seen set untouched. Returns a non-nil error
// only when consecutive failures exceed the configured threshold.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("error_backoff", s.errorBackoff))

	consecutive := 0

	runOnce := func() error {
		err := s.cycle(ctx)
		switch {
		case err == nil:
			consecutive = 0
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Shutdown mid-cycle; not a failure.
		default:
			consecutive++
			if s.maxFailures > 0 && consecutive >= s.maxFailures {
				return fmt.Errorf("giving up after %d consecutive cycle failures: %w", consecutive, err)
			}
			s.logger.Warn("cycle failed, backing off",
				zap.Int("consecutive", consecutive),
				zap.Duration("backoff", s.errorBackoff),
				zap.Error(err))
			sleepCtx(ctx, s.errorBackoff)
		}
		return nil
	}

	// First cycle runs at startup rather than one full interval later.
	if err := runOnce(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
		case <-s.trigger:
		}

		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping")
			return nil
		}
		if err := runOnce(); err != nil {
			return err
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) error {
	report, err := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.last = report
	s.lastErr = err
	s.mu.Unlock()

	return err
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
