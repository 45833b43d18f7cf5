package lockmgr

import "github.com/cuemby/ember/pkg/wal"

// Duration classifies when a held lock becomes eligible for release,
// mirroring lock_x.h's t_num_durations request-duration buckets.
type Duration uint8

const (
	// DurationInstant locks are released as soon as the operation that
	// took them completes (e.g. a non-repeatable read).
	DurationInstant Duration = iota
	// DurationManual locks live until an explicit unlock call.
	DurationManual
	// DurationCommit locks live until the owning transaction ends —
	// the default and by far the most common duration.
	DurationCommit
)

type heldLock struct {
	queue    *LockQueue
	entry    *LockQueueEntry
	duration Duration
}

// XctLockInfo is one transaction's private lock-manager state: its held
// locks, its Dreadlocks wait-map, and (while blocked) the request it's
// waiting on. Mirrors xct_lock_info_t.
type XctLockInfo struct {
	Tid      uint64
	ChainLen uint32

	held []heldLock

	WaitMap      WaitMap
	waitingQueue *LockQueue
	waitingEntry *LockQueueEntry

	// ReadWatermark is the highest commit LSN this transaction has
	// observed via a safe-ELR X-lock tag; used to delay visibility of
	// early-released exclusive locks until their commit record is durable.
	ReadWatermark wal.LSN

	// Nonblocking poisons all future lock requests once a checkpoint or
	// shutdown has force-aborted this transaction out from under it.
	Nonblocking bool
}

func NewXctLockInfo(tid uint64) *XctLockInfo {
	return &XctLockInfo{Tid: tid}
}

func (x *XctLockInfo) addHeld(queue *LockQueue, entry *LockQueueEntry, duration Duration) {
	for _, h := range x.held {
		if h.entry == entry {
			return
		}
	}
	x.held = append(x.held, heldLock{queue: queue, entry: entry, duration: duration})
}

func (x *XctLockInfo) removeHeld(queue *LockQueue) {
	for i, h := range x.held {
		if h.queue == queue {
			x.held = append(x.held[:i], x.held[i+1:]...)
			return
		}
	}
}

// IsWaiting reports whether this transaction is currently blocked on a
// lock request.
func (x *XctLockInfo) IsWaiting() bool { return x.waitingEntry != nil }

func (x *XctLockInfo) setWaiting(queue *LockQueue, entry *LockQueueEntry) {
	x.waitingQueue = queue
	x.waitingEntry = entry
}

func (x *XctLockInfo) clearWaiting() {
	x.waitingQueue = nil
	x.waitingEntry = nil
}
