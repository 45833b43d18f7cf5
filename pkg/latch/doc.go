// Package latch implements a many-reader/one-writer spinlock (C3), the
// basis for page latching in the buffer pool and the lock manager's hash
// table buckets.
//
// Holder state packs into one counter: 2*readers + writer (0 or 1), so a
// reader acquire is a single CAS bumping the counter by 2 and a writer
// acquire is a single CAS from 0 to 1. Writer fairness against a stream of
// readers comes from an MCS queue: a writer enqueues itself before
// spinning on the holder counter, so once a writer is waiting, new readers
// still succeed (this is a reader-preference lock, like the original's
// queue_based_lock_t composition) but writers queue FIFO among themselves
// rather than livelocking each other.
//
// This is a spin lock: Acquire* never parks the calling goroutine on a
// channel or mutex, it busy-waits with runtime.Gosched(). Use it only to
// protect short, latch-duration critical sections (a page header update, a
// hash bucket walk) — never around I/O or anything that blocks.
package latch
