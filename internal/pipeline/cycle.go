// Package pipeline runs one end-to-end announcement cycle:
// fetch -> diff -> format -> dispatch -> commit.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plexwatch/announcer/internal/diff"
	"github.com/plexwatch/announcer/internal/domain"
	"github.com/plexwatch/announcer/internal/plex"
	"github.com/plexwatch/announcer/internal/store"
)

// Formatter renders one item into a channel-ready payload.
type Formatter interface {
	Payload(item domain.Item) domain.Payload
}

// Deliverer sends one payload to completion (success or permanent failure).
type Deliverer interface {
	Deliver(ctx context.Context, payload domain.Payload) error
}

// Pinger notifies an uptime monitor that a cycle finished cleanly.
type Pinger interface {
	Ping(ctx context.Context, elapsed time.Duration)
}

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the runner constructor signature clean.
type MetricHooks struct {
	OnAnnounced func(kind domain.Kind, latency time.Duration)
	OnFailed    func(kind domain.Kind)
	OnCycle     func(result string, duration time.Duration, snapshotSize, newItems, seenSize int)
}

func (h *MetricHooks) fillNoops() {
	if h.OnAnnounced == nil {
		h.OnAnnounced = func(domain.Kind, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Kind) {}
	}
	if h.OnCycle == nil {
		h.OnCycle = func(string, time.Duration, int, int, int) {}
	}
}

// ItemFailure records one per-item permanent dispatch failure. The item
// stays out of the seen set and is retried as new on the next cycle.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// Report summarises one cycle for logs and the ops status endpoint.
type Report struct {
	CycleID   string        `json:"cycle_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Snapshot  int           `json:"snapshot_items"`
	New       int           `json:"new_items"`
	Announced int           `json:"announced"`
	Failed    []ItemFailure `json:"failed,omitempty"`
	SeenAfter int           `json:"seen_after"`
}

// Runner executes cycles. It holds no cross-cycle state of its own — the
// seen set is loaded fresh from the store every cycle, so a restart (or a
// crash between dispatch and commit) converges on its own.
type Runner struct {
	store     store.SeenStore
	source    plex.Source
	formatter Formatter
	deliverer Deliverer
	sections  []string
	pinger    Pinger // optional, may be nil
	hooks     MetricHooks
	logger    *zap.Logger
}

func NewRunner(
	seenStore store.SeenStore,
	source plex.Source,
	formatter Formatter,
	deliverer Deliverer,
	sections []string,
	pinger Pinger,
	logger *zap.Logger,
	hooks MetricHooks,
) *Runner {
	hooks.fillNoops()
	return &Runner{
		store:     seenStore,
		source:    source,
		formatter: formatter,
		deliverer: deliverer,
		sections:  sections,
		pinger:    pinger,
		hooks:     hooks,
		logger:    logger,
	}
}

// RunCycle executes one full cycle. A non-nil error is cycle-level (store or
// source unavailable, commit failed, cancelled); the seen set is never left
// partially updated. Per-item dispatch failures do not produce an error —
// they are recorded in the report and the items simply stay unseen.
func (r *Runner) RunCycle(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		CycleID:   uuid.New().String(),
		StartedAt: start.UTC(),
	}
	log := r.logger.With(zap.String("cycle_id", report.CycleID))

	finish := func(result string) {
		report.Duration = time.Since(start)
		r.hooks.OnCycle(result, report.Duration, report.Snapshot, report.New, report.SeenAfter)
	}

	// ---- load ----
	seen, err := r.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			finish("cancelled")
			return report, ctx.Err()
		}
		// Skipping the cycle is mandatory here: an empty stand-in seen set
		// would re-announce the whole library.
		log.Error("seen set load failed, skipping cycle", zap.Error(err))
		finish("store_error")
		return report, err
	}
	report.SeenAfter = len(seen)

	// ---- fetch ----
	snapshots := make([]*domain.Snapshot, 0, len(r.sections))
	for _, section := range r.sections {
		snap, err := r.source.Fetch(ctx, section)
		if err != nil {
			// A fetch aborted by shutdown is cancellation, not a source
			// failure; the transport flattens the context error, so ask
			// the context directly.
			if ctx.Err() != nil {
				finish("cancelled")
				return report, ctx.Err()
			}
			log.Error("snapshot fetch failed, skipping cycle",
				zap.String("section", section), zap.Error(err))
			finish("source_error")
			return report, err
		}
		snapshots = append(snapshots, snap)
	}

	// ---- diff ----
	merged := diff.Merge(snapshots)
	fresh := diff.New(merged, seen)
	report.Snapshot = len(merged.Items)
	report.New = len(fresh)

	// ---- dispatch ----
	announced := make([]string, 0, len(fresh))
	for _, item := range fresh {
		// Shutdown is honored between items, not just at tick boundaries.
		if ctx.Err() != nil {
			break
		}

		payload := r.formatter.Payload(item)
		sendStart := time.Now()
		if err := r.deliverer.Deliver(ctx, payload); err != nil {
			if ctx.Err() != nil {
				break
			}
			// One item's permanent failure must not block the rest.
			log.Warn("item dispatch failed",
				zap.String("item_id", item.ID),
				zap.String("title", item.Title),
				zap.Error(err))
			report.Failed = append(report.Failed, ItemFailure{
				ItemID: item.ID,
				Title:  item.Title,
				Reason: err.Error(),
			})
			r.hooks.OnFailed(item.Kind)
			continue
		}

		r.hooks.OnAnnounced(item.Kind, time.Since(sendStart))
		announced = append(announced, item.ID)
		log.Info("item announced",
			zap.String("item_id", item.ID),
			zap.String("kind", string(item.Kind)),
			zap.String("title", item.Title))
	}
	report.Announced = len(announced)

	// ---- commit ----
	// Detached from cancellation: items already in the channel must become
	// durable even when shutdown interrupted the dispatch loop, or they
	// would be announced again on restart.
	if err := r.store.Commit(context.WithoutCancel(ctx), announced); err != nil {
		log.Error("seen set commit failed", zap.Error(err),
			zap.Int("announced", len(announced)))
		finish("commit_error")
		return report, err
	}
	report.SeenAfter = len(seen) + len(announced)

	if ctx.Err() != nil {
		finish("cancelled")
		return report, ctx.Err()
	}

	finish("ok")
	log.Info("cycle complete",
		zap.Int("snapshot", report.Snapshot),
		zap.Int("new", report.New),
		zap.Int("announced", report.Announced),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration))

	if r.pinger != nil {
		r.pinger.Ping(ctx, time.Since(start))
	}
	return report, nil
}
