package lockfree

import "github.com/cuemby/ember/pkg/gcpool"

// Entry is implemented by *T for any node type stored in a List[T,K,PT].
// T must carry a key and a next-pointer slot; List never accesses either
// field directly, always going through these accessors, so the node's
// memory layout is the caller's business.
type Entry[T any, K any] interface {
	gcpool.Entry[T]
	Key() K
	SetKey(K)
	NextPtr() *gcpool.AtomicPointer
}

// Window is the predecessor/current pair returned by find: current is the
// first live node whose key is >= the searched key (or the null pointer if
// none exists), and predecessor is the last node whose key is smaller (nil
// meaning the list head itself).
type Window[T any, K any, PT Entry[T, K]] struct {
	Predecessor   PT
	Current       gcpool.Pointer
	CurrentKey    K
	HasCurrentKey bool
}
