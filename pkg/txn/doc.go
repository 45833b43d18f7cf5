// Package txn implements the transaction context (C8): per-transaction
// state machine, log record buffering, compensation anchors, rollback,
// and the commit/abort protocols, per spec.md §4.8.
//
// Each Xct owns a per-transaction one-thread mutex (threadMu): only the
// attached thread may log or request locks on the transaction's behalf,
// enforced by Attach/Detach rather than by a TLS lookup (this port has
// no thread-local storage equivalent to bind against — the caller holds
// the *Xct directly instead of recovering it from the calling
// goroutine).
package txn
