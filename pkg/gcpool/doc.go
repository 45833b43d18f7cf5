/*
Package gcpool implements the lock-free, generation-based object-pool
forest (component C1): a forest of generations, each owning segments,
each holding fixed-size objects. Allocation hands objects out from a
segment a single caller (identified by an explicit worker id, Go's
substitute for thread-local storage) owns exclusively, so the hot path
needs no cross-thread synchronization. Whole generations are retired,
as a unit, once no transaction older than the generation's epoch can
still reference their objects.

# Addressing

An object is addressed by a 64-bit Pointer: an 8-bit generation number
(0 reserved for null), an 8-bit segment index within that generation,
and a 16-bit offset within that segment, plus a 31-bit ABA counter and
a mark-for-death bit packed into the remaining top bits. Pointer.

# Concurrency

Cross-thread coordination happens only at two seams: claiming a new
segment within a generation (single CAS on the generation's segment
counter) and advancing/retiring generations (single CAS on the forest's
current/head generation counters). Everything else — handing out the
next object within a segment a worker already owns — is uncontended.
*/
package gcpool
