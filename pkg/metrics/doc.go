/*
Package metrics provides Prometheus metrics collection and exposition for
the ember storage engine.

The metrics package defines and registers every gauge/counter/histogram
using the Prometheus client library, and exposes them over HTTP via
Handler() for scraping. Naming follows Prometheus conventions: counters
end in _total, durations are histograms in seconds, and labels stay
low-cardinality.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │         Metric Definitions (metrics.go)     │          │
	│  │  - Gauge: instant values (dirty pages)      │          │
	│  │  - Counter: monotonic totals (log inserts)  │          │
	│  │  - Histogram: latency distributions         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Collector (collector.go)           │          │
	│  │  - Polls a StatsSource every 15s            │          │
	│  │  - Buffer pool: dirty pages                 │          │
	│  │  - Lock table: live queues                  │          │
	│  │  - Log manager: live partitions             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │       Health/Readiness (health.go)          │          │
	│  │  - RegisterComponent / UpdateComponent      │          │
	│  │  - critical components: wal, buffer,        │          │
	│  │    lockmgr                                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           HTTP Exposition                   │          │
	│  │  /metrics  -> Handler() (promhttp)           │          │
	│  │  /health   -> HealthHandler()                │          │
	│  │  /ready    -> ReadyHandler()                 │          │
	│  │  /live     -> LivenessHandler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metric catalog

Buffer pool:

ember_buffer_pool_pages / ember_buffer_pool_dirty_pages / ember_buffer_pool_hits_total /
ember_buffer_pool_misses_total / ember_buffer_pool_evictions_total /
ember_page_cleaner_runs_total{outcome} / ember_page_cleaner_flush_duration_seconds /
ember_write_order_loops_rejected_total

Log manager:

ember_log_inserts_total / ember_log_flush_duration_seconds / ember_log_bytes_written_total /
ember_log_partitions / ember_log_partition_rotations_total / ember_log_scavenge_errors_total

Lock manager:

ember_lock_requests_total{outcome} / ember_lock_wait_duration_seconds /
ember_deadlocks_detected_total / ember_lock_timeouts_total / ember_lock_table_queues

Checkpoint manager:

ember_checkpoint_duration_seconds / ember_checkpoints_total{outcome} /
ember_checkpoint_min_rec_lsn

Transactions:

ember_transactions_total{outcome} / ember_transaction_commit_duration_seconds /
ember_transaction_rollback_duration_seconds / ember_active_transactions

GC object-pool forest:

ember_gc_generations_active / ember_gc_generation_retirements_total

# Usage

	timer := metrics.NewTimer()
	// ... perform a flush ...
	timer.ObserveDuration(metrics.LogFlushDuration)

	collector := metrics.NewCollector(engineHandle)
	collector.Start()
	defer collector.Stop()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
