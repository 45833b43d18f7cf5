// Package lockmgr implements the lock manager (C5): a light-weight
// per-volume/per-store intent lock table (LIL) plus the main OKVL
// key-value lock table with Dreadlocks deadlock detection.
//
// The main table is a fixed array of buckets; each bucket is a
// pkg/lockfree list (keyed by the full lock-id hash, to disambiguate
// collisions within a bucket) of lock queues, with queue nodes allocated
// from a pkg/gcpool forest — the C1/C2 consumer spec.md §4.2 names
// ("used for hash-bucket chains"). Each lock queue's own granted/waiting
// entry list is protected by a pkg/latch read-write spinlock (C3),
// mirroring lock_bucket.h's separation between the (lock-free) bucket
// chain and the (latched) per-queue request list.
//
// Deadlock detection follows Dreadlocks: every waiting transaction ORs
// its fingerprint bitmap into a running wait-map as it walks incompatible
// predecessors in its queue; seeing its own fingerprint reappear in a
// predecessor's map means a cycle exists. The transaction that discovers
// the cycle while re-checking its own wait always victimizes itself
// rather than picking among the cycle's members — simpler than the
// original's youngest/shortest-chain heuristic, at the cost of sometimes
// aborting a transaction that was closer to completion.
package lockmgr
