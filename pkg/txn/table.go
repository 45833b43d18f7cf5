package txn

import (
	"sync"

	"github.com/cuemby/ember/pkg/buffer"
	"github.com/cuemby/ember/pkg/checkpoint"
	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/lockmgr"
	"github.com/cuemby/ember/pkg/wal"
)

// Table is the transaction table: every live transaction, keyed by tid,
// plus the shared C4/C5/C6 handles new transactions attach to. It is the
// concrete checkpoint.XctSource the checkpoint manager polls.
type Table struct {
	cfg     econfig.Config
	log     *wal.Manager
	lockmgr *lockmgr.Manager
	buf     *buffer.Pool

	mu      sync.Mutex
	nextTid uint64
	xcts    map[wal.TxID]*Xct
}

// NewTable constructs an empty transaction table.
func NewTable(cfg econfig.Config, log *wal.Manager, lm *lockmgr.Manager, buf *buffer.Pool) *Table {
	return &Table{
		cfg:     cfg,
		log:     log,
		lockmgr: lm,
		buf:     buf,
		xcts:    make(map[wal.TxID]*Xct),
	}
}

// Begin starts a new transaction, registers its lock state with the lock
// manager, and attaches the calling thread to it.
func (t *Table) Begin() *Xct {
	t.mu.Lock()
	t.nextTid++
	tid := wal.TxID(t.nextTid)
	x := newXct(tid, t, false)
	t.xcts[tid] = x
	t.mu.Unlock()

	t.lockmgr.RegisterXct(x.LockInfo)
	x.Attach()
	return x
}

// RunSSX logs a single multi-page-aware record outside any transaction's
// state machine — a single-log system transaction, per spec.md §4.8's
// "begun via a scoped section ... skips state-machine transitions".
func (t *Table) RunSSX(kind wal.RecordType, page, page2 *buffer.BCB, payload []byte) (wal.LSN, error) {
	rec := &wal.Record{Type: kind, Category: wal.CategorySSX, Payload: payload}
	if page != nil {
		rec.PageID = page.PageID
		rec.PagePrevLSN = page.PageLSN()
	}
	lsn, err := t.log.Insert(rec)
	if err != nil {
		return wal.Null, err
	}
	if page != nil {
		page.SetPageLSN(lsn)
	}
	if page2 != nil {
		page2.SetPageLSN(lsn)
	}
	return lsn, nil
}

func (t *Table) unregister(x *Xct) {
	t.mu.Lock()
	delete(t.xcts, x.Tid)
	t.mu.Unlock()
	t.lockmgr.UnregisterXct(uint64(x.Tid))
}

// Lookup returns the live transaction for tid, if any.
func (t *Table) Lookup(tid wal.TxID) (*Xct, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	x, ok := t.xcts[tid]
	return x, ok
}

// Len reports the number of currently live transactions.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.xcts)
}

// Snapshot implements checkpoint.XctSource: a fuzzy view of every live
// transaction's log chain state, per spec.md §4.7 step 8.
func (t *Table) Snapshot() []checkpoint.XctSnapshot {
	t.mu.Lock()
	xcts := make([]*Xct, 0, len(t.xcts))
	for _, x := range t.xcts {
		xcts = append(xcts, x)
	}
	t.mu.Unlock()

	out := make([]checkpoint.XctSnapshot, 0, len(xcts))
	for _, x := range xcts {
		x.mu.Lock()
		out = append(out, checkpoint.XctSnapshot{
			Tid:      uint64(x.Tid),
			State:    uint32(x.state),
			FirstLSN: x.firstLSN,
			LastLSN:  x.lastLSN,
			UndoNxt:  x.undoNxt,
		})
		x.mu.Unlock()
	}
	return out
}

// PoisonOlderThan implements checkpoint.XctSource: it flags every
// transaction whose first_lsn precedes cutoff as non-blocking, so its
// future lock requests no longer pin the checkpoint's reclaim progress.
// It does not itself force those transactions to end — this port has no
// wait/callback channel for that yet (see DESIGN.md).
func (t *Table) PoisonOlderThan(cutoff wal.LSN) int {
	t.mu.Lock()
	xcts := make([]*Xct, 0, len(t.xcts))
	for _, x := range t.xcts {
		xcts = append(xcts, x)
	}
	t.mu.Unlock()

	n := 0
	for _, x := range xcts {
		x.mu.Lock()
		first := x.firstLSN
		x.mu.Unlock()
		if !first.IsNull() && first.Less(cutoff) {
			x.LockInfo.Nonblocking = true
			n++
		}
	}
	return n
}
