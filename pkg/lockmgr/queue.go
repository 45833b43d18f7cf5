package lockmgr

import (
	"sync/atomic"

	"github.com/cuemby/ember/pkg/gcpool"
	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/wal"
)

// Status is a lock request's current disposition within its queue.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusGranted
	StatusDeadlocked
	StatusTimedOut
)

// LockQueueEntry is one transaction's request against a LockQueue —
// granted or waiting — per spec.md §3's Lock Queue Entry. All fields are
// protected by the owning LockQueue's latch.
type LockQueueEntry struct {
	Tid                    uint64
	Granted                Mode
	Requested              Mode
	ChainLen               uint32
	Status                 Status
	ObservedReleaseVersion uint64
}

// LockQueue is the granted+waiting request list for one resource (store +
// key hash), per spec.md §3's Lock Queue. It is itself a node in a
// pkg/lockfree list keyed by the resource's full hash, allocated from a
// pkg/gcpool forest — the hash-bucket chain spec.md §4.2 describes.
type LockQueue struct {
	gcPtr gcpool.Pointer
	next  gcpool.AtomicPointer
	hash  uint64

	Latch          latch.RWSpinlock
	releaseVersion atomic.Uint64
	xLockTag       atomic.Pointer[wal.LSN]
	entries        []*LockQueueEntry
}

func (q *LockQueue) SetGCPointer(p gcpool.Pointer)       { q.gcPtr = p }
func (q *LockQueue) Key() uint64                         { return q.hash }
func (q *LockQueue) SetKey(k uint64)                     { q.hash = k }
func (q *LockQueue) NextPtr() *gcpool.AtomicPointer      { return &q.next }
func (q *LockQueue) ReleaseVersion() uint64              { return q.releaseVersion.Load() }

// XLockTag returns the commit LSN of the most recent transaction that
// released an X-compatible hold on this queue, or wal.Null if none has.
func (q *LockQueue) XLockTag() wal.LSN {
	p := q.xLockTag.Load()
	if p == nil {
		return wal.Null
	}
	return *p
}

func (q *LockQueue) updateXLockTag(commitLSN wal.LSN) {
	if commitLSN.IsNull() {
		return
	}
	for {
		cur := q.XLockTag()
		if !cur.IsNull() && !cur.Less(commitLSN) {
			return
		}
		prevPtr := q.xLockTag.Load()
		if q.xLockTag.CompareAndSwap(prevPtr, &commitLSN) {
			return
		}
	}
}

// findEntry returns tid's entry in the queue, if any. Caller must hold
// Latch.
func (q *LockQueue) findEntry(tid uint64) (*LockQueueEntry, bool) {
	for _, e := range q.entries {
		if e.Tid == tid {
			return e, true
		}
	}
	return nil, false
}

// compatibleWithOthers reports whether mode is compatible with every
// other entry currently in the queue (granted or waiting), the condition
// spec.md §4.5 step 3 requires before a new (or converting) request can
// be granted immediately. Caller must hold Latch.
func (q *LockQueue) compatibleWithOthers(tid uint64, mode Mode) bool {
	for _, e := range q.entries {
		if e.Tid == tid {
			continue
		}
		other := e.Granted
		if e.Status != StatusGranted {
			other = e.Requested
		}
		if !Compatible(other, mode) {
			return false
		}
	}
	return true
}

// append adds entry to the queue tail. Caller must hold Latch.
func (q *LockQueue) append(entry *LockQueueEntry) {
	entry.ObservedReleaseVersion = q.releaseVersion.Load()
	q.entries = append(q.entries, entry)
}

// detach removes entry from the queue. Caller must hold Latch.
func (q *LockQueue) detach(entry *LockQueueEntry) {
	for i, e := range q.entries {
		if e == entry {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// wakeupCandidates returns every still-waiting entry that is now
// compatible with the rest of the queue, in FIFO order, stopping at the
// first entry that still can't be granted — spec.md §4.5's "Release"
// semantics. Caller must hold Latch.
func (q *LockQueue) wakeupCandidates() []*LockQueueEntry {
	var ready []*LockQueueEntry
	for _, e := range q.entries {
		if e.Status != StatusWaiting {
			continue
		}
		if !q.compatibleWithOthers(e.Tid, e.Requested) {
			break
		}
		ready = append(ready, e)
	}
	return ready
}

// incompatiblePredecessors returns the tids of every other transaction
// with an entry in the queue (granted or waiting) whose mode is
// incompatible with the waiting entry's request -- the Dreadlocks
// predecessor set whose wait-maps this entry must OR into its own.
// Caller must hold Latch (read is sufficient).
func (q *LockQueue) incompatiblePredecessors(entry *LockQueueEntry) []uint64 {
	var tids []uint64
	for _, e := range q.entries {
		if e == entry || e.Tid == entry.Tid {
			continue
		}
		mode := e.Granted
		if e.Status != StatusGranted {
			mode = e.Requested
		}
		if !Compatible(mode, entry.Requested) {
			tids = append(tids, e.Tid)
		}
	}
	return tids
}
