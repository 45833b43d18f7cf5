// Package lockfree implements the Harris-Michael lock-free singly linked
// list (C2): a sorted-by-key list whose readers are wait-free and whose
// writers make progress via CAS retry loops rather than mutual exclusion.
//
// Nodes live in a gcpool.Forest: the list never calls new/delete directly,
// it asks the forest for a slot and stamps the returned gcpool.Pointer into
// the node's own "next" predecessor link, exactly as the original's
// GcPoolForest-backed entries do. Marking a node for death is a single CAS
// on its own next pointer (the mark bit lives in the *successor* link, not
// a separate tombstone field); a marked node is then physically unlinked
// ("delinked") by whichever goroutine next traverses past it, so removal
// cost is amortized across future finds rather than paid up front by the
// remover.
//
//	 head --> [1] --> [3*] --> [4] --> nil      (* = marked for death)
//	           |        |
//	     find(4) delinks [3] while walking past it, then continues to [4]
//
// Methods named unsafe_* in the style this package mirrors are exposed here
// as UnsafeX: they assume no concurrent writers and exist for tests and
// diagnostics, not the hot path.
package lockfree
