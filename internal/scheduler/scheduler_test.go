package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/config"
	"github.com/plexwatch/announcer/internal/pipeline"
	"github.com/plexwatch/announcer/internal/scheduler"
)

// fakeRunner counts cycles and returns the configured error on every run.
type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	err   error
	ran   chan struct{}
	block time.Duration
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan struct{}, 32)}
}

func (f *fakeRunner) RunCycle(ctx context.Context) (*pipeline.Report, error) {
	f.mu.Lock()
	f.runs++
	err := f.err
	f.mu.Unlock()
	if f.block > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.block):
		}
	}
	select {
	case f.ran <- struct{}{}:
	default:
	}
	if err != nil {
		return nil, err
	}
	return &pipeline.Report{Announced: 1}, nil
}

func (f *fakeRunner) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		PollInterval: 30 * time.Millisecond,
		ErrorBackoff: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a cycle")
	}
}

func TestRun_FirstCycleIsImmediate(t *testing.T) {
	runner := newFakeRunner()
	s := scheduler.New(runner, testSchedulerConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// The first cycle must not wait out a full poll interval.
	waitFor(t, runner.ran)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
	if runner.runCount() < 1 {
		t.Fatal("no cycle ran")
	}
}

func TestRun_TicksRepeatedly(t *testing.T) {
	runner := newFakeRunner()
	s := scheduler.New(runner, testSchedulerConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, runner.ran)
	waitFor(t, runner.ran)
	waitFor(t, runner.ran)
	if runner.runCount() < 3 {
		t.Fatalf("expected at least 3 cycles, got %d", runner.runCount())
	}
}

func TestTriggerNow_RunsAheadOfSchedule(t *testing.T) {
	runner := newFakeRunner()
	cfg := testSchedulerConfig()
	cfg.PollInterval = time.Hour // ticks never fire during the test
	s := scheduler.New(runner, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, runner.ran) // startup cycle
	s.TriggerNow()
	waitFor(t, runner.ran)
	if runner.runCount() != 2 {
		t.Fatalf("expected 2 cycles, got %d", runner.runCount())
	}
}

func TestTriggerNow_Coalesces(t *testing.T) {
	runner := newFakeRunner()
	s := scheduler.New(runner, testSchedulerConfig(), zap.NewNop())

	// Before Run drains anything, repeated triggers occupy one slot.
	s.TriggerNow()
	s.TriggerNow()
	s.TriggerNow()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	waitFor(t, runner.ran) // startup
	waitFor(t, runner.ran) // the single coalesced trigger
	time.Sleep(10 * time.Millisecond)
	if n := runner.runCount(); n > 3 {
		t.Fatalf("triggers did not coalesce: %d cycles", n)
	}
}

func TestRun_FailuresBackOffAndRecover(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("plex down")
	s := scheduler.New(runner, testSchedulerConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, runner.ran)
	waitFor(t, runner.ran)

	runner.mu.Lock()
	runner.err = nil
	runner.mu.Unlock()

	waitFor(t, runner.ran)
	_, lastErr := s.Last()
	for i := 0; lastErr != nil && i < 50; i++ {
		time.Sleep(10 * time.Millisecond)
		_, lastErr = s.Last()
	}
	if lastErr != nil {
		t.Fatalf("scheduler did not recover: %v", lastErr)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRun_GivesUpAfterMaxConsecutiveFailures(t *testing.T) {
	runner := newFakeRunner()
	runner.err = errors.New("store gone")
	cfg := testSchedulerConfig()
	cfg.MaxConsecutiveFailures = 2
	s := scheduler.New(runner, cfg, zap.NewNop())

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to give up")
	}
	if !strings.Contains(err.Error(), "consecutive") {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.runCount() != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", runner.runCount())
	}
}

func TestRun_CancellationIsNotAFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.block = time.Hour
	cfg := testSchedulerConfig()
	cfg.MaxConsecutiveFailures = 1
	s := scheduler.New(runner, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown mid-cycle counted as failure: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLast_ExposesMostRecentReport(t *testing.T) {
	runner := newFakeRunner()
	s := scheduler.New(runner, testSchedulerConfig(), zap.NewNop())

	if report, _ := s.Last(); report != nil {
		t.Fatalf("expected nil report before any cycle, got %+v", report)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitFor(t, runner.ran)

	// The report is stored just after the run signal fires.
	report, err := s.Last()
	for i := 0; report == nil && i < 100; i++ {
		time.Sleep(5 * time.Millisecond)
		report, err = s.Last()
	}
	if err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}
	if report == nil || report.Announced != 1 {
		t.Fatalf("report = %+v", report)
	}
}
