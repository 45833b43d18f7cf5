package lockmgr

import (
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/gcpool"
	"github.com/cuemby/ember/pkg/lockfree"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/wal"
)

const (
	lockPollInterval = 2 * time.Millisecond
	lockWaitTimeout  = 2 * time.Second
)

// poolConfig sizes the gcpool forest backing lock queue allocation. Lock
// queues are short-lived relative to transactions but long-lived
// relative to individual requests, so modest segment sizes keep
// fragmentation low without over-provisioning generations.
var poolConfig = gcpool.Config{
	MaxGenerations:        8,
	SegmentsPerGeneration: 64,
	ObjectsPerSegment:     256,
}

// Manager is the OKVL lock table: a fixed array of hash buckets, each a
// pkg/lockfree list of LockQueues, plus the LIL fast path for
// volume/store intent locks. Mirrors lock_core_m's combination of
// lock_lil.h's global tables and lock_bucket.h's bucket_t array.
type Manager struct {
	cfg econfig.Config

	buckets []*lockfree.List[LockQueue, uint64, *LockQueue]
	pool    *gcpool.Forest[LockQueue, *LockQueue]

	volMu   sync.Mutex
	volumes map[uint32]*VolTable

	xctMu sync.Mutex
	xcts  map[uint64]*XctLockInfo
}

// New constructs a Manager with cfg.LockTableSize buckets (econfig.Load
// rounds that value to a prime; a Config built in code is used as given).
func New(cfg econfig.Config) *Manager {
	m := &Manager{
		cfg:     cfg,
		pool:    gcpool.New[LockQueue, *LockQueue](poolConfig),
		volumes: make(map[uint32]*VolTable),
		xcts:    make(map[uint64]*XctLockInfo),
	}
	n := cfg.LockTableSize
	if n <= 0 {
		n = 1
	}
	m.buckets = make([]*lockfree.List[LockQueue, uint64, *LockQueue], n)
	for i := range m.buckets {
		m.buckets[i] = lockfree.New[LockQueue, uint64, *LockQueue](m.pool)
	}
	return m
}

func (m *Manager) bucketFor(hash uint64) *lockfree.List[LockQueue, uint64, *LockQueue] {
	return m.buckets[hash%uint64(len(m.buckets))]
}

// VolTable returns (creating if absent) the LIL table for a volume.
func (m *Manager) VolTable(volumeID uint32) *VolTable {
	m.volMu.Lock()
	defer m.volMu.Unlock()
	v, ok := m.volumes[volumeID]
	if !ok {
		v = NewVolTable()
		m.volumes[volumeID] = v
	}
	return v
}

// RegisterXct installs xctInfo as the manager's tracked state for its
// transaction, making it visible to Dreadlocks propagation from other
// waiters. Must be called once before the transaction issues any
// RequestLock calls.
func (m *Manager) RegisterXct(info *XctLockInfo) {
	m.xctMu.Lock()
	defer m.xctMu.Unlock()
	m.xcts[info.Tid] = info
}

// UnregisterXct removes a transaction's tracked state, normally called
// once all of its locks have been released.
func (m *Manager) UnregisterXct(tid uint64) {
	m.xctMu.Lock()
	defer m.xctMu.Unlock()
	delete(m.xcts, tid)
}

func (m *Manager) lookupXct(tid uint64) *XctLockInfo {
	m.xctMu.Lock()
	defer m.xctMu.Unlock()
	return m.xcts[tid]
}

// RequestLock acquires mode on id for the transaction described by
// xctInfo, blocking (with periodic Dreadlocks re-detection, per spec.md
// §4.5's "bounded-interval" wait protocol) until granted, timed out, or
// chosen as a deadlock victim. workerID selects the gcpool allocation
// cursor (Go has no implicit thread-local identity, so callers pass the
// same small integer they use for every other pool-allocating call).
func (m *Manager) RequestLock(workerID uint32, xctInfo *XctLockInfo, id LockID, mode Mode, duration Duration) (Mode, error) {
	if xctInfo.Nonblocking {
		return Mode{}, emberr.New(emberr.KindLockTimeout, "xct %d is poisoned, rejecting new lock requests", xctInfo.Tid)
	}

	queue, err := m.bucketFor(id.Hash()).GetOrAdd(id.Hash(), workerID)
	if err != nil {
		return Mode{}, err
	}

	entry, granted, err := m.tryGrant(queue, xctInfo, mode)
	if err != nil {
		return Mode{}, err
	}
	if granted {
		xctInfo.addHeld(queue, entry, duration)
		bumpReadWatermark(xctInfo, queue.XLockTag())
		return entry.Granted, nil
	}

	final, err := m.waitForGrant(queue, xctInfo, entry)
	if err != nil {
		return Mode{}, err
	}
	xctInfo.addHeld(queue, entry, duration)
	bumpReadWatermark(xctInfo, queue.XLockTag())
	return final, nil
}

// bumpReadWatermark raises xctInfo's ReadWatermark to tag when a grant
// against a queue observes a non-null x_lock_tag — the other half of safe
// early lock release (spec.md §4.5, §8 scenario 4): a reader that acquires
// a lock an ELR-mode transaction released before its commit record was
// durable must not return results to its own caller until the log has
// been flushed through that commit LSN.
func bumpReadWatermark(xctInfo *XctLockInfo, tag wal.LSN) {
	if tag.IsNull() {
		return
	}
	if xctInfo.ReadWatermark.Less(tag) {
		xctInfo.ReadWatermark = tag
	}
}

// tryGrant attempts an immediate grant or in-place conversion, appending
// a waiting entry to the queue when it cannot. Returns the entry either
// way (granted==true means no further waiting is needed).
func (m *Manager) tryGrant(queue *LockQueue, xctInfo *XctLockInfo, mode Mode) (*LockQueueEntry, bool, error) {
	queue.Latch.AcquireWrite()
	defer queue.Latch.ReleaseWrite()

	if existing, ok := queue.findEntry(xctInfo.Tid); ok {
		if Covers(existing.Granted, mode) {
			return existing, true, nil
		}
		desired := Supremum(existing.Granted, mode)
		existing.Requested = desired
		if queue.compatibleWithOthers(xctInfo.Tid, desired) {
			existing.Granted = desired
			existing.Status = StatusGranted
			return existing, true, nil
		}
		existing.Status = StatusWaiting
		xctInfo.setWaiting(queue, existing)
		return existing, false, nil
	}

	entry := &LockQueueEntry{Tid: xctInfo.Tid, Requested: mode, ChainLen: xctInfo.ChainLen}
	if queue.compatibleWithOthers(xctInfo.Tid, mode) {
		entry.Granted = mode
		entry.Status = StatusGranted
		queue.append(entry)
		return entry, true, nil
	}
	entry.Status = StatusWaiting
	queue.append(entry)
	xctInfo.setWaiting(queue, entry)
	return entry, false, nil
}

// waitForGrant blocks xctInfo until entry is granted, a timeout elapses,
// or Dreadlocks selects xctInfo as a deadlock victim.
func (m *Manager) waitForGrant(queue *LockQueue, xctInfo *XctLockInfo, entry *LockQueueEntry) (Mode, error) {
	deadline := time.Now().Add(lockWaitTimeout)
	for {
		queue.Latch.AcquireWrite()
		if entry.Status == StatusGranted {
			queue.Latch.ReleaseWrite()
			xctInfo.clearWaiting()
			return entry.Granted, nil
		}
		if queue.compatibleWithOthers(xctInfo.Tid, entry.Requested) {
			entry.Granted = entry.Requested
			entry.Status = StatusGranted
			queue.Latch.ReleaseWrite()
			xctInfo.clearWaiting()
			return entry.Granted, nil
		}

		preds := queue.incompatiblePredecessors(entry)
		deadlocked := m.propagateWaitMap(xctInfo, preds)
		queue.Latch.ReleaseWrite()

		if deadlocked {
			m.abandonWait(queue, xctInfo, entry)
			return Mode{}, emberr.New(emberr.KindDeadlock, "xct %d selected as deadlock victim", xctInfo.Tid)
		}
		if time.Now().After(deadline) {
			m.abandonWait(queue, xctInfo, entry)
			return Mode{}, emberr.New(emberr.KindLockTimeout, "xct %d timed out waiting for lock", xctInfo.Tid)
		}
		time.Sleep(lockPollInterval)
	}
}

// propagateWaitMap ORs xctInfo's fingerprint with the wait-maps of every
// predecessor it's directly blocked behind, the Dreadlocks propagation
// step, and reports whether xctInfo's own bit has reappeared in a
// predecessor's map — the cycle signal. False positives are possible
// (the fixed-width fingerprint can alias two distinct transactions onto
// the same bit) but false negatives are not, matching the original's
// documented trade-off.
func (m *Manager) propagateWaitMap(xctInfo *XctLockInfo, preds []uint64) bool {
	own := FingerprintOf(xctInfo.Tid)
	deadlocked := false
	for _, tid := range preds {
		predInfo := m.lookupXct(tid)
		if predInfo == nil {
			continue
		}
		predMap := predInfo.WaitMap.Load()
		if predMap.Contains(xctInfo.Tid) {
			deadlocked = true
		}
		own = own.Or(predMap)
	}
	xctInfo.WaitMap.Store(own)
	return deadlocked
}

// abandonWait removes entry from queue and clears xctInfo's waiting
// state, used when a wait ends in timeout or deadlock rather than grant.
func (m *Manager) abandonWait(queue *LockQueue, xctInfo *XctLockInfo, entry *LockQueueEntry) {
	queue.Latch.AcquireWrite()
	queue.detach(entry)
	ready := queue.wakeupCandidates()
	for _, e := range ready {
		e.Granted = e.Requested
		e.Status = StatusGranted
	}
	queue.releaseVersion.Add(1)
	queue.Latch.ReleaseWrite()
	xctInfo.clearWaiting()
	xctInfo.WaitMap.MarkObsolete()
}

// Release drops xctInfo's hold on id, waking any waiters it now permits.
// commitLSN is recorded as the queue's early-release tag when it is
// non-null and the released mode had an X component, supporting safe
// SX/CLV early lock release (econfig.ELRMode).
func (m *Manager) Release(xctInfo *XctLockInfo, id LockID, commitLSN wal.LSN) error {
	queue, ok := m.bucketFor(id.Hash()).Get(id.Hash())
	if !ok {
		return nil
	}
	m.releaseFromQueue(xctInfo, queue, commitLSN)
	return nil
}

func (m *Manager) releaseFromQueue(xctInfo *XctLockInfo, queue *LockQueue, commitLSN wal.LSN) {
	queue.Latch.AcquireWrite()
	entry, ok := queue.findEntry(xctInfo.Tid)
	if !ok {
		queue.Latch.ReleaseWrite()
		return
	}
	released := entry.Granted
	queue.detach(entry)
	if m.cfg.ELRMode.Normalize() != econfig.ELRNone && (released.Key == X || released.Key == SIX) {
		queue.updateXLockTag(commitLSN)
	}
	ready := queue.wakeupCandidates()
	for _, e := range ready {
		e.Granted = e.Requested
		e.Status = StatusGranted
	}
	queue.releaseVersion.Add(1)
	queue.Latch.ReleaseWrite()
	xctInfo.removeHeld(queue)
}

// ReleaseEarly releases the subset of xctInfo's held locks eligible for
// early release under elrMode, before the transaction's commit record has
// been flushed (spec.md §4.5's elr_s/elr_sx protocol): elr_s releases only
// S/UD holds (read locks on data the releasing transaction didn't write),
// elr_sx (and clv, which Normalize aliases to it) additionally releases
// X/SIX holds, tagging each released queue's x_lock_tag with commitLSN so
// a subsequent grantee's ReadWatermark (via bumpReadWatermark) reflects
// the need to flush through commitLSN before returning. Locks that aren't
// eligible stay held for the caller's later ReleaseAll once the flush
// completes.
func (m *Manager) ReleaseEarly(xctInfo *XctLockInfo, elrMode econfig.ELRMode, commitLSN wal.LSN) {
	elrMode = elrMode.Normalize()
	if elrMode == econfig.ELRNone {
		return
	}
	held := xctInfo.held
	xctInfo.held = nil
	var remaining []heldLock
	for _, h := range held {
		if !elrEligible(elrMode, h.entry.Granted.Key) {
			remaining = append(remaining, h)
			continue
		}
		m.releaseFromQueue(xctInfo, h.queue, commitLSN)
	}
	xctInfo.held = remaining
}

func elrEligible(mode econfig.ELRMode, key BaseMode) bool {
	switch key {
	case S, UD:
		return true
	case X, SIX:
		return mode == econfig.ELRSX
	default:
		return false
	}
}

// ReleaseDuration releases every lock xctInfo holds at exactly the given
// duration (e.g. all DurationCommit locks at transaction end), mirroring
// lock_x.h's per-duration release lists.
func (m *Manager) ReleaseDuration(xctInfo *XctLockInfo, duration Duration, commitLSN wal.LSN) {
	var remaining []heldLock
	for _, h := range xctInfo.held {
		if h.duration != duration {
			remaining = append(remaining, h)
			continue
		}
		m.releaseFromQueue(xctInfo, h.queue, commitLSN)
	}
	xctInfo.held = remaining
}

// ReleaseAll releases every lock xctInfo holds regardless of duration,
// used on transaction abort.
func (m *Manager) ReleaseAll(xctInfo *XctLockInfo, commitLSN wal.LSN) {
	held := xctInfo.held
	xctInfo.held = nil
	for _, h := range held {
		m.releaseFromQueue(xctInfo, h.queue, commitLSN)
	}
}

// QueueSnapshot is a point-in-time view of one LockQueue's entries, the
// introspection surface DumpQueues exposes for diagnostics and tests,
// mirroring lock_vtable.cpp's external view of the lock table.
type QueueSnapshot struct {
	Hash    uint64
	Entries []EntrySnapshot
}

// EntrySnapshot is one entry within a QueueSnapshot.
type EntrySnapshot struct {
	Tid       uint64
	Granted   Mode
	Requested Mode
	Status    Status
}

// DumpQueues returns a snapshot of every non-empty lock queue currently
// in the table.
func (m *Manager) DumpQueues() []QueueSnapshot {
	var out []QueueSnapshot
	for _, b := range m.buckets {
		for _, hash := range b.UnsafeKeys() {
			queue, ok := b.Get(hash)
			if !ok {
				continue
			}
			queue.Latch.AcquireRead()
			if len(queue.entries) == 0 {
				queue.Latch.ReleaseRead()
				continue
			}
			snap := QueueSnapshot{Hash: hash}
			for _, e := range queue.entries {
				snap.Entries = append(snap.Entries, EntrySnapshot{
					Tid:       e.Tid,
					Granted:   e.Granted,
					Requested: e.Requested,
					Status:    e.Status,
				})
			}
			queue.Latch.ReleaseRead()
			out = append(out, snap)
		}
	}
	return out
}

// LockTableStats reports a point-in-time snapshot for pkg/metrics' collector.
func (m *Manager) LockTableStats() metrics.LockTableStats {
	return metrics.LockTableStats{Queues: len(m.DumpQueues())}
}
