package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Buffer pool metrics
	BufferPoolPages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_buffer_pool_pages",
			Help: "Total number of frames in the buffer pool",
		},
	)

	BufferPoolDirtyPages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_buffer_pool_dirty_pages",
			Help: "Current number of dirty frames in the buffer pool",
		},
	)

	BufferPoolHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_buffer_pool_hits_total",
			Help: "Total number of fix() calls satisfied without a page read",
		},
	)

	BufferPoolMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_buffer_pool_misses_total",
			Help: "Total number of fix() calls that required reading a page from a volume",
		},
	)

	BufferPoolEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_buffer_pool_evictions_total",
			Help: "Total number of frames reclaimed by the clock replacement policy",
		},
	)

	PageCleanerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_page_cleaner_runs_total",
			Help: "Total number of page cleaner sweeps by outcome",
		},
		[]string{"outcome"},
	)

	PageCleanerFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_page_cleaner_flush_duration_seconds",
			Help:    "Time taken to flush a run of dirty pages to a volume",
			Buckets: prometheus.DefBuckets,
		},
	)

	WriteOrderLoopsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_write_order_loops_rejected_total",
			Help: "Total number of register_write_order_dependency calls rejected as cycle-forming",
		},
	)

	// WAL / log manager metrics
	LogInsertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_log_inserts_total",
			Help: "Total number of log records inserted",
		},
	)

	LogFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_log_flush_duration_seconds",
			Help:    "Time taken for a log flush() call to reach stable storage",
			Buckets: prometheus.DefBuckets,
		},
	)

	LogBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_log_bytes_written_total",
			Help: "Total number of log bytes written to stable storage",
		},
	)

	LogPartitionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_log_partitions",
			Help: "Current number of live (non-scavenged) log partitions",
		},
	)

	LogPartitionRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_log_partition_rotations_total",
			Help: "Total number of log partition rollovers",
		},
	)

	LogScavengeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_log_scavenge_errors_total",
			Help: "Total number of scavenge() calls that failed to retire a partition",
		},
	)

	// Lock manager metrics
	LockRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_lock_requests_total",
			Help: "Total number of lock requests by outcome",
		},
		[]string{"outcome"},
	)

	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_lock_wait_duration_seconds",
			Help:    "Time a request spent blocked before grant, timeout, or deadlock victimization",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeadlocksDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_deadlocks_detected_total",
			Help: "Total number of Dreadlocks cycles detected",
		},
	)

	LockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_lock_timeouts_total",
			Help: "Total number of lock requests that timed out waiting",
		},
	)

	LockTableQueues = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_lock_table_queues",
			Help: "Current number of live lock queues in the main lock table",
		},
	)

	// Checkpoint manager metrics
	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_checkpoint_duration_seconds",
			Help:    "Time taken for a full checkpoint cycle (begin through end)",
			Buckets: prometheus.DefBuckets,
		},
	)

	CheckpointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_checkpoints_total",
			Help: "Total number of checkpoints completed by outcome",
		},
		[]string{"outcome"},
	)

	CheckpointMinRecLSN = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_checkpoint_min_rec_lsn",
			Help: "min_rec_lsn recorded by the most recent completed checkpoint",
		},
	)

	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_transactions_total",
			Help: "Total number of transactions completed by outcome",
		},
		[]string{"outcome"},
	)

	TransactionCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_transaction_commit_duration_seconds",
			Help:    "Time taken for the commit protocol, from committing state to ended",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransactionRollbackDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_transaction_rollback_duration_seconds",
			Help:    "Time taken to walk and undo a transaction's log chain",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_active_transactions",
			Help: "Current number of non-ended transaction contexts",
		},
	)

	// GC object-pool forest metrics
	GCGenerationsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_gc_generations_active",
			Help: "Current number of healthy (non-retired) generations in a pool forest",
		},
	)

	GCGenerationRetirements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_gc_generation_retirements_total",
			Help: "Total number of generations retired across all pool forests",
		},
	)
)

func init() {
	prometheus.MustRegister(BufferPoolPages)
	prometheus.MustRegister(BufferPoolDirtyPages)
	prometheus.MustRegister(BufferPoolHits)
	prometheus.MustRegister(BufferPoolMisses)
	prometheus.MustRegister(BufferPoolEvictions)
	prometheus.MustRegister(PageCleanerRuns)
	prometheus.MustRegister(PageCleanerFlushDuration)
	prometheus.MustRegister(WriteOrderLoopsRejected)

	prometheus.MustRegister(LogInsertsTotal)
	prometheus.MustRegister(LogFlushDuration)
	prometheus.MustRegister(LogBytesWritten)
	prometheus.MustRegister(LogPartitionsTotal)
	prometheus.MustRegister(LogPartitionRotations)
	prometheus.MustRegister(LogScavengeErrors)

	prometheus.MustRegister(LockRequestsTotal)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(DeadlocksDetectedTotal)
	prometheus.MustRegister(LockTimeoutsTotal)
	prometheus.MustRegister(LockTableQueues)

	prometheus.MustRegister(CheckpointDuration)
	prometheus.MustRegister(CheckpointsTotal)
	prometheus.MustRegister(CheckpointMinRecLSN)

	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionCommitDuration)
	prometheus.MustRegister(TransactionRollbackDuration)
	prometheus.MustRegister(ActiveTransactions)

	prometheus.MustRegister(GCGenerationsActive)
	prometheus.MustRegister(GCGenerationRetirements)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
