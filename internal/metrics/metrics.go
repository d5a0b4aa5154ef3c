package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plexwatch/announcer/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	ItemsAnnounced  *prometheus.CounterVec
	ItemsFailed     *prometheus.CounterVec
	AnnounceLatency *prometheus.HistogramVec
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	SnapshotItems   prometheus.Gauge
	NewItems        prometheus.Gauge
	SeenItems       prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ItemsAnnounced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_items_announced_total",
			Help: "Total number of items successfully announced.",
		}, []string{"kind"}),

		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_items_failed_total",
			Help: "Total number of per-item dispatch failures (retried next cycle).",
		}, []string{"kind"}),

		AnnounceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "announcer_dispatch_seconds",
			Help:    "Per-item dispatch latency including throttle and retry waits.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),

		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "announcer_cycles_total",
			Help: "Completed poll cycles by result.",
		}, []string{"result"}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "announcer_cycle_seconds",
			Help:    "End-to-end duration of one fetch-diff-dispatch-commit cycle.",
			Buckets: prometheus.DefBuckets,
		}),

		SnapshotItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_snapshot_items",
			Help: "Number of items in the most recent library snapshot.",
		}),
		NewItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_new_items",
			Help: "Number of new items found in the most recent cycle.",
		}),
		SeenItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "announcer_seen_items",
			Help: "Current size of the durable seen set.",
		}),
	}

	reg.MustRegister(
		m.ItemsAnnounced,
		m.ItemsFailed,
		m.AnnounceLatency,
		m.CyclesTotal,
		m.CycleDuration,
		m.SnapshotItems,
		m.NewItems,
		m.SeenItems,
	)

	return m
}

// PipelineHooks returns the metric callback functions expected by
// pipeline.MetricHooks. Centralises the prometheus observation calls so the
// pipeline stays metrics-agnostic.
func (m *Metrics) PipelineHooks() (
	onAnnounced func(kind domain.Kind, latency time.Duration),
	onFailed func(kind domain.Kind),
	onCycle func(result string, duration time.Duration, snapshotSize, newItems, seenSize int),
) {
	onAnnounced = func(kind domain.Kind, latency time.Duration) {
		m.ItemsAnnounced.WithLabelValues(string(kind)).Inc()
		m.AnnounceLatency.WithLabelValues(string(kind)).Observe(latency.Seconds())
	}
	onFailed = func(kind domain.Kind) {
		m.ItemsFailed.WithLabelValues(string(kind)).Inc()
	}
	onCycle = func(result string, duration time.Duration, snapshotSize, newItems, seenSize int) {
		m.CyclesTotal.WithLabelValues(result).Inc()
		m.CycleDuration.Observe(duration.Seconds())
		m.SnapshotItems.Set(float64(snapshotSize))
		m.NewItems.Set(float64(newItems))
		m.SeenItems.Set(float64(seenSize))
	}
	return
}
