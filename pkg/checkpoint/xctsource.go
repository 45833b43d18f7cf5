package checkpoint

import "github.com/cuemby/ember/pkg/wal"

// XctSnapshot is one row of a chkpt_xct_tab record: the minimum state
// the checkpoint manager needs to reconstruct an active transaction's
// undo chain on recovery, per spec.md §4.7 step 8.
type XctSnapshot struct {
	Tid      uint64
	State    uint32
	FirstLSN wal.LSN
	LastLSN  wal.LSN
	UndoNxt  wal.LSN
}

// XctSource is pkg/txn's transaction table, as seen by the checkpoint
// manager. Kept as a narrow interface rather than a direct *txn.Table
// dependency so pkg/checkpoint does not need to import pkg/txn.
type XctSource interface {
	// Snapshot returns a fuzzy snapshot of every non-ended transaction.
	Snapshot() []XctSnapshot
	// PoisonOlderThan forces every transaction whose FirstLSN precedes
	// cutoff into non-blocking mode (its further lock requests are
	// rejected), so it stops
	// pinning log space the checkpoint is about to reclaim. Returns the
	// count affected. Per spec.md §4.7 step 2; this port does not block
	// waiting for the poisoned transactions to finish, since doing so
	// would require a callback or wait-group pkg/txn does not yet expose
	// — flagged in DESIGN.md as a simplification relative to the
	// original's synchronous wait.
	PoisonOlderThan(cutoff wal.LSN) int
}
