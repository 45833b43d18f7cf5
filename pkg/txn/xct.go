package txn

import (
	"sync"

	"github.com/cuemby/ember/pkg/buffer"
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/lockmgr"
	"github.com/cuemby/ember/pkg/wal"
	"github.com/google/uuid"
)

// Xct is one transaction's context: its state machine position, its log
// chain pointers, its lock manager handle, and the thread-attach
// protocol guarding all of them. Mirrors xct_t, narrowed to the fields
// this engine's core actually needs.
type Xct struct {
	Tid      wal.TxID
	DebugTag string

	table *Table

	// Chained restarts this transaction as a fresh one on commit,
	// inheriting the commit LSN as its read watermark (spec.md §4.8
	// commit step 6).
	Chained bool
	// Prepared marks a two-phase-commit prepared transaction; its abort
	// path always flushes (spec.md §4.8 abort protocol).
	Prepared bool
	// Loser marks a transaction discovered still active during recovery;
	// it takes the same abort path as a live abort.
	Loser bool

	system bool

	threadMu sync.Mutex
	attached bool

	mu          sync.Mutex
	state       State
	firstLSN    wal.LSN
	lastLSN     wal.LSN
	undoNxt     wal.LSN
	anchorDepth int
	anchorLSN   wal.LSN

	logBuf wal.Record

	// LockInfo is this transaction's private lock-manager state,
	// registered with the Table's lockmgr.Manager for the lifetime of
	// the transaction.
	LockInfo *lockmgr.XctLockInfo
}

func newXct(tid wal.TxID, table *Table, system bool) *Xct {
	return &Xct{
		Tid:      tid,
		DebugTag: uuid.NewString(),
		table:    table,
		system:   system,
		state:    StateActive,
		LockInfo: lockmgr.NewXctLockInfo(uint64(tid)),
	}
}

// Attach binds the calling thread to this transaction for the duration
// of a logical unit of work; Detach must follow on the same goroutine.
// Only one thread may hold the attachment at a time.
func (x *Xct) Attach() {
	x.threadMu.Lock()
	x.attached = true
}

// Detach releases the thread attachment.
func (x *Xct) Detach() {
	x.attached = false
	x.threadMu.Unlock()
}

// State returns the transaction's current state.
func (x *Xct) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

func (x *Xct) transition(from, to State) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.state != from {
		return emberr.New(emberr.KindStateTransitionInvalid, "xct %d: %s -> %s invalid from %s", x.Tid, from, to, x.state)
	}
	x.state = to
	return nil
}

// FirstLSN and LastLSN report the transaction's log chain bounds.
func (x *Xct) FirstLSN() wal.LSN {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.firstLSN
}

func (x *Xct) LastLSN() wal.LSN {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.lastLSN
}

// GetLogBuf returns this transaction's reusable log record buffer,
// stamped with kind, category, and this transaction's tid. The caller
// fills in PageID/PageTag/Payload before passing it to GiveLogBuf.
func (x *Xct) GetLogBuf(kind wal.RecordType, category wal.Category) *wal.Record {
	x.logBuf = wal.Record{Type: kind, Category: category, Tid: x.Tid}
	return &x.logBuf
}

// GiveLogBuf submits rec to the log manager, stamping xid_prev from this
// transaction's log chain and page_prev from page's chain (if page is
// non-nil), then advances both chains. page2 covers an operation that
// touches a second page (e.g. a split).
func (x *Xct) GiveLogBuf(rec *wal.Record, page, page2 *buffer.BCB) (wal.LSN, error) {
	x.mu.Lock()
	rec.XidPrevLSN = x.lastLSN
	x.mu.Unlock()

	if page != nil {
		rec.PageID = page.PageID
		rec.PagePrevLSN = page.PageLSN()
	}

	lsn, err := x.table.log.Insert(rec)
	if err != nil {
		return wal.Null, err
	}

	x.mu.Lock()
	if x.firstLSN.IsNull() {
		x.firstLSN = lsn
	}
	x.lastLSN = lsn
	x.mu.Unlock()

	if page != nil {
		page.SetPageLSN(lsn)
	}
	if page2 != nil {
		page2.SetPageLSN(lsn)
	}
	return lsn, nil
}

// Anchor begins a compensation scope, recording the current last_lsn on
// its outermost call. Returns the anchor LSN undo will jump back to.
func (x *Xct) Anchor() wal.LSN {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.anchorDepth == 0 {
		x.anchorLSN = x.lastLSN
	}
	x.anchorDepth++
	return x.anchorLSN
}

// ReleaseAnchor ends the innermost compensation scope. When the
// outermost anchor releases with compensate=true, the last emitted
// record is retro-patched into a CLR via the log manager's Compensate
// (when it is still in the open partition); otherwise a stand-alone CLR
// is logged, matching spec.md §4.8's "or writes a stand-alone CLR if
// records intervened and cannot be retro-patched".
func (x *Xct) ReleaseAnchor(compensate bool) error {
	x.mu.Lock()
	x.anchorDepth--
	depth := x.anchorDepth
	anchorLSN := x.anchorLSN
	lastLSN := x.lastLSN
	x.mu.Unlock()

	if depth > 0 || !compensate || lastLSN == anchorLSN {
		return nil
	}

	ok, err := x.table.log.Compensate(lastLSN, anchorLSN)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	rec := x.GetLogBuf(wal.RecordCompensation, wal.CategoryCPSN)
	rec.XidPrevLSN = anchorLSN
	_, err = x.GiveLogBuf(rec, nil, nil)
	return err
}

// Rollback walks the log chain backward from last_lsn, invoking undo for
// every undoable record, following CLR records' xid_prev (their
// undo_nxt) instead of re-undoing them, and stopping at savepoint (which
// is not itself undone) or, if savepoint is null, once this
// transaction's first record has been undone. Acquires no new locks.
func (x *Xct) Rollback(savepoint wal.LSN, undo func(rec *wal.Record) error) error {
	x.mu.Lock()
	cursor := x.lastLSN
	stop := savepoint
	x.mu.Unlock()

	for !cursor.IsNull() && stop.Less(cursor) {
		rec, err := x.table.log.Fetch(cursor)
		if err != nil {
			return err
		}
		next := rec.XidPrevLSN

		if rec.Category&wal.CategoryUndo != 0 {
			x.Anchor()
			if err := undo(rec); err != nil {
				x.ReleaseAnchor(false)
				return err
			}
			if err := x.ReleaseAnchor(true); err != nil {
				return err
			}
		}
		cursor = next
	}

	x.mu.Lock()
	x.undoNxt = stop
	x.mu.Unlock()
	return nil
}

// Commit runs the commit protocol (spec.md §4.8): freeing-space
// transition, xct_end, flush, release all locks, detach. If Chained,
// returns a freshly begun transaction inheriting commitLSN as its read
// watermark.
func (x *Xct) Commit() (*Xct, error) {
	if err := x.transition(StateActive, StateCommitting); err != nil {
		return nil, err
	}
	if err := x.transition(StateCommitting, StateFreeingSpace); err != nil {
		return nil, err
	}

	if !x.system {
		rec := x.GetLogBuf(wal.RecordXctFreeingSpace, wal.CategoryLogical)
		if _, err := x.GiveLogBuf(rec, nil, nil); err != nil {
			return nil, err
		}
	}

	endRec := x.GetLogBuf(wal.RecordXctEnd, wal.CategoryLogical)
	commitLSN, err := x.GiveLogBuf(endRec, nil, nil)
	if err != nil {
		return nil, err
	}

	// Early lock release (spec.md §4.5): under elr_s/elr_sx, eligible
	// locks are released the moment xct_end is written, before this
	// transaction waits on its own flush below. A transaction granted one
	// of those locks raises its ReadWatermark to the releasing
	// transaction's commit LSN, so this transaction's own flush target
	// must cover both: its own commit record and the highest watermark it
	// has itself observed (scenario 4: a read-only transaction that only
	// ever observed another's early release still must flush through that
	// commit LSN before reporting success).
	x.table.lockmgr.ReleaseEarly(x.LockInfo, x.table.cfg.ELRMode, commitLSN)

	flushThrough := commitLSN
	if wm := x.LockInfo.ReadWatermark; !wm.IsNull() && flushThrough.Less(wm) {
		flushThrough = wm
	}
	if err := x.table.log.Flush(flushThrough, true); err != nil {
		return nil, err
	}

	if err := x.transition(StateFreeingSpace, StateEnded); err != nil {
		return nil, err
	}
	x.table.lockmgr.ReleaseAll(x.LockInfo, commitLSN)
	x.table.unregister(x)
	x.Detach()

	if x.Chained {
		next := x.table.Begin()
		next.LockInfo.ReadWatermark = commitLSN
		return next, nil
	}
	return nil, nil
}

// Abort runs the abort protocol (spec.md §4.8): rollback to null LSN,
// xct_freeing_space + xct_abort, flush if chained or prepared, release
// all locks, detach.
func (x *Xct) Abort(undo func(rec *wal.Record) error) error {
	if err := x.transition(StateActive, StateAborting); err != nil {
		return err
	}

	if err := x.Rollback(wal.Null, undo); err != nil {
		return err
	}

	rec := x.GetLogBuf(wal.RecordXctFreeingSpace, wal.CategoryLogical)
	if _, err := x.GiveLogBuf(rec, nil, nil); err != nil {
		return err
	}

	abortRec := x.GetLogBuf(wal.RecordXctAbort, wal.CategoryLogical)
	abortLSN, err := x.GiveLogBuf(abortRec, nil, nil)
	if err != nil {
		return err
	}

	if x.Chained || x.Prepared {
		if err := x.table.log.Flush(abortLSN, true); err != nil {
			return err
		}
	}

	if err := x.transition(StateAborting, StateEnded); err != nil {
		return err
	}
	x.table.lockmgr.ReleaseAll(x.LockInfo, abortLSN)
	x.table.unregister(x)
	x.Detach()
	return nil
}
