package latch

import (
	"runtime"
	"sync/atomic"
)

// Mode reports how a RWSpinlock is currently held.
type Mode int

const (
	None Mode = iota
	Writer
	Reader
)

const writerBit uint32 = 0x1
const readerUnit uint32 = 0x2

// qnode is one waiter's slot in the writer-fairness MCS queue.
type qnode struct {
	next   atomic.Pointer[qnode]
	locked atomic.Bool
}

// RWSpinlock is a many-reader/one-writer spin lock: holders packs
// 2*readers+writer into one word, and a small MCS queue orders waiting
// writers FIFO so they don't starve each other under contention.
type RWSpinlock struct {
	holders    atomic.Uint32
	qtail      atomic.Pointer[qnode]
	writerNode atomic.Pointer[qnode]
}

// Mode returns the mode in which the lock is currently held by anyone.
func (l *RWSpinlock) Mode() Mode {
	h := l.holders.Load()
	switch {
	case h == writerBit:
		return Writer
	case h > 0:
		return Reader
	default:
		return None
	}
}

// IsLocked reports whether the lock is held in any mode.
func (l *RWSpinlock) IsLocked() bool { return l.holders.Load() != 0 }

// NumHolders returns 1 if held in write mode, else the number of readers.
func (l *RWSpinlock) NumHolders() int {
	h := l.holders.Load()
	if h == writerBit {
		return 1
	}
	return int(h / readerUnit)
}

// HasReader reports whether one or more readers hold the lock.
func (l *RWSpinlock) HasReader() bool { return l.holders.Load()&^writerBit != 0 }

// HasWriter reports whether the writer holds the lock.
func (l *RWSpinlock) HasWriter() bool { return l.holders.Load()&writerBit != 0 }

// AttemptRead tries to acquire read access without spinning. Returns false
// if a writer currently holds or is modifying the lock.
func (l *RWSpinlock) AttemptRead() bool {
	h := l.holders.Load()
	if h&writerBit != 0 {
		return false
	}
	return l.holders.CompareAndSwap(h, h+readerUnit)
}

// AcquireRead spins until read access is granted.
func (l *RWSpinlock) AcquireRead() {
	for {
		h := l.holders.Load()
		if h&writerBit != 0 {
			runtime.Gosched()
			continue
		}
		if l.holders.CompareAndSwap(h, h+readerUnit) {
			return
		}
	}
}

// ReleaseRead releases one reader's hold. If this call was the downgraded
// former writer's last reference, it also releases the underlying MCS
// queue node so the next queued writer can proceed.
func (l *RWSpinlock) ReleaseRead() {
	remaining := l.holders.Add(^uint32(readerUnit - 1))
	if remaining != 0 {
		return
	}
	if node := l.writerNode.Load(); node != nil {
		if l.writerNode.CompareAndSwap(node, nil) {
			l.releaseQueueNode(node)
		}
	}
}

// AttemptWrite tries to acquire write access without spinning.
func (l *RWSpinlock) AttemptWrite() bool {
	if l.holders.Load() != 0 {
		return false
	}
	node := &qnode{}
	if !l.qtail.CompareAndSwap(nil, node) {
		return false
	}
	if !l.holders.CompareAndSwap(0, writerBit) {
		l.qtail.CompareAndSwap(node, nil)
		return false
	}
	l.writerNode.Store(node)
	return true
}

// AcquireWrite enqueues onto the writer-fairness MCS queue, then spins
// until the holder counter reaches zero.
func (l *RWSpinlock) AcquireWrite() {
	node := &qnode{}
	node.locked.Store(true)
	prev := l.qtail.Swap(node)
	if prev != nil {
		prev.next.Store(node)
		for node.locked.Load() {
			runtime.Gosched()
		}
	}
	for !l.holders.CompareAndSwap(0, writerBit) {
		runtime.Gosched()
	}
	l.writerNode.Store(node)
}

// ReleaseWrite releases the lock and, if downgrade was not called, the
// underlying MCS queue node.
func (l *RWSpinlock) ReleaseWrite() {
	l.holders.Store(0)
	node := l.writerNode.Swap(nil)
	if node != nil {
		l.releaseQueueNode(node)
	}
}

// AttemptUpgrade tries to upgrade from read to write mode, failing if any
// other reader holds the lock or a writer is already queued.
func (l *RWSpinlock) AttemptUpgrade() bool {
	if l.qtail.Load() != nil {
		return false
	}
	if !l.holders.CompareAndSwap(readerUnit, writerBit) {
		return false
	}
	node := &qnode{}
	node.locked.Store(false)
	if !l.qtail.CompareAndSwap(nil, node) {
		// A writer queued between the checks above; back out of write
		// mode (we still hold nothing readers can rely on, since we just
		// took it exclusively) by restoring read mode.
		l.holders.Store(readerUnit)
		return false
	}
	l.writerNode.Store(node)
	return true
}

// Downgrade atomically converts a held write lock into a single read
// hold. The caller must currently hold the lock in write mode.
func (l *RWSpinlock) Downgrade() {
	l.holders.Store(readerUnit)
}

func (l *RWSpinlock) releaseQueueNode(node *qnode) {
	if node.next.Load() == nil {
		if l.qtail.CompareAndSwap(node, nil) {
			return
		}
		for node.next.Load() == nil {
			runtime.Gosched()
		}
	}
	node.next.Load().locked.Store(false)
}

// ReadGuard acquires l for reading and returns a release function, for
// callers that prefer defer over explicit Acquire/Release pairs.
func ReadGuard(l *RWSpinlock) func() {
	l.AcquireRead()
	return l.ReleaseRead
}

// WriteGuard acquires l for writing and returns a release function.
func WriteGuard(l *RWSpinlock) func() {
	l.AcquireWrite()
	return l.ReleaseWrite
}
