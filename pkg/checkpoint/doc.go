// Package checkpoint implements the checkpoint manager (C7): a single
// background thread, woken either on a timer or by an edge-triggered
// Trigger call, that takes a fuzzy, non-blocking snapshot of buffer pool
// and transaction state and anchors a new log recovery point.
//
// A checkpoint-serial mutex (Manager.mu) ensures only one checkpoint runs
// at a time. Each run follows spec.md §4.7's eleven steps: poison
// transactions that are pinning a partition the next checkpoint would
// like to retire, flush pages older than the resulting low-water mark,
// write chkpt_begin, emit chkpt_bf_tab/chkpt_dev_tab/chkpt_xct_tab,
// write chkpt_end, then flush and scavenge. Every emitted record is
// charged against the log manager's checkpoint reservation (pkg/wal's
// ConsumeChkptReservation/VerifyChkptReservation); exhausting it aborts
// the run with the reservation error, which RunOnce returns and the
// background loop logs before waiting for the next wakeup.
package checkpoint
