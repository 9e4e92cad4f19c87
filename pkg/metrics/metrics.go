// Package metrics exposes Prometheus instrumentation for the sync
// engine: activity-sync hit/miss/timeout counts, polling-group queue
// depth and effective rate, log rotations, snapshot writes, and
// cache-hit ratios.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Activity sync metrics
	ActivitySyncCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_activity_sync_cycles_total",
			Help: "Total number of activity-sync scan cycles completed",
		},
	)

	ActivitySyncOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteforge_activity_sync_outcomes_total",
			Help: "Activity-sync poll outcomes by reason and result",
		},
		[]string{"reason", "result"}, // result: hit, miss, timeout
	)

	ActivitySyncRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_activity_sync_retries_total",
			Help: "Total number of pollAndReload retry attempts issued",
		},
	)

	ActivitySyncCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noteforge_activity_sync_cycle_duration_seconds",
			Help:    "Time taken for one activity-sync scan cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActivityLogStaleEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteforge_activity_log_stale_entries_total",
			Help: "Total number of stale own-instance entries self-healed",
		},
		[]string{"instance_id"},
	)

	// Polling group metrics
	PollingQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "noteforge_polling_queue_depth",
			Help: "Current polling-group queue depth by priority",
		},
		[]string{"priority"}, // high, normal
	)

	PollingEffectiveRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "noteforge_polling_effective_rate",
			Help: "Current effective polling rate within the rolling rate-limit window",
		},
	)

	PollingBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteforge_polling_batches_total",
			Help: "Total number of polling-group entries found to meet their exit criteria, by reason",
		},
		[]string{"reason"},
	)

	// Log writer / reader metrics
	LogRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_log_rotations_total",
			Help: "Total number of .crdtlog rotations performed",
		},
	)

	LogRecordsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_log_records_appended_total",
			Help: "Total number of log records appended across all notes",
		},
	)

	LogIntegrityFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteforge_log_integrity_failures_total",
			Help: "Total number of log integrity validation failures by error kind",
		},
		[]string{"kind"},
	)

	// Snapshot metrics
	SnapshotsWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_snapshots_written_total",
			Help: "Total number of complete snapshots written",
		},
	)

	SnapshotWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noteforge_snapshot_write_duration_seconds",
			Help:    "Time taken for the two-phase snapshot write protocol",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteforge_snapshots_pruned_total",
			Help: "Total number of snapshots deleted during crash recovery, by reason",
		},
		[]string{"reason"}, // incomplete, retention
	)

	// Note storage manager / cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_cache_hits_total",
			Help: "Total number of note loads served from the per-note cache row",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_cache_misses_total",
			Help: "Total number of note loads that fell back to snapshot+log merge",
		},
	)

	NoteLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noteforge_note_load_duration_seconds",
			Help:    "Time taken to load a note (cache hit or snapshot+log merge)",
			Buckets: prometheus.DefBuckets,
		},
	)

	NoteSaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "noteforge_note_save_duration_seconds",
			Help:    "Time taken to serialize and append an incremental update",
			Buckets: prometheus.DefBuckets,
		},
	)

	RecoveryRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "noteforge_recovery_runs_total",
			Help: "Total number of full crash-recovery passes performed",
		},
	)

	CacheHitRatio = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "noteforge_cache_hit_ratio",
			Help: "Rolling ratio of note loads served from cache versus snapshot+log merge",
		},
	)
)

func init() {
	prometheus.MustRegister(ActivitySyncCyclesTotal)
	prometheus.MustRegister(ActivitySyncOutcomesTotal)
	prometheus.MustRegister(ActivitySyncRetriesTotal)
	prometheus.MustRegister(ActivitySyncCycleDuration)
	prometheus.MustRegister(ActivityLogStaleEntriesTotal)

	prometheus.MustRegister(PollingQueueDepth)
	prometheus.MustRegister(PollingEffectiveRate)
	prometheus.MustRegister(PollingBatchesTotal)

	prometheus.MustRegister(LogRotationsTotal)
	prometheus.MustRegister(LogRecordsAppendedTotal)
	prometheus.MustRegister(LogIntegrityFailuresTotal)

	prometheus.MustRegister(SnapshotsWrittenTotal)
	prometheus.MustRegister(SnapshotWriteDuration)
	prometheus.MustRegister(SnapshotsPrunedTotal)

	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(NoteLoadDuration)
	prometheus.MustRegister(NoteSaveDuration)
	prometheus.MustRegister(RecoveryRunsTotal)
	prometheus.MustRegister(CacheHitRatio)
}

// Handler returns the Prometheus HTTP handler, for embedding in an
// administrative or diagnostic server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
