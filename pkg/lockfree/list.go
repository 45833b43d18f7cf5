package lockfree

import (
	"cmp"
	"fmt"
	"io"

	"github.com/cuemby/ember/pkg/gcpool"
)

// List is a lock-free sorted singly linked list keyed by K, backed by a
// gcpool.Forest[T, PT] for node storage.
type List[T any, K cmp.Ordered, PT Entry[T, K]] struct {
	pool *gcpool.Forest[T, PT]
	head gcpool.AtomicPointer
}

// New constructs an empty list backed by pool.
func New[T any, K cmp.Ordered, PT Entry[T, K]](pool *gcpool.Forest[T, PT]) *List[T, K, PT] {
	return &List[T, K, PT]{pool: pool}
}

// nextSlot returns the AtomicPointer that holds "predecessor's next
// pointer" — the list head itself when predecessor is the PT zero value.
func (l *List[T, K, PT]) nextSlot(predecessor PT) *gcpool.AtomicPointer {
	if predecessor == nil {
		return &l.head
	}
	return predecessor.NextPtr()
}

// GetOrAdd returns the entry for key, creating and inserting one allocated
// from workerID's cursor if it doesn't already exist.
func (l *List[T, K, PT]) GetOrAdd(key K, workerID uint32) (PT, error) {
	for {
		window := l.find(key)
		if !window.Current.IsNull() && window.HasCurrentKey && window.CurrentKey == key {
			obj, ok := l.pool.Resolve(window.Current)
			if ok {
				return obj, nil
			}
			continue // concurrently retired; retry the whole find
		}

		obj, ptr, err := l.pool.Allocate(workerID)
		if err != nil {
			var zero PT
			return zero, err
		}
		obj.SetKey(key)
		obj.NextPtr().Store(window.Current)

		newPointer := ptr.WithABA(window.Current.ABA() + 1)
		if l.nextSlot(window.Predecessor).CompareAndSwap(window.Current, newPointer) {
			return obj, nil
		}
		// Lost the race to link it in. The forest doesn't actually reclaim
		// single objects (see gcpool.Forest.Deallocate), so we just retry
		// with a freshly allocated node rather than reusing obj.
		l.pool.Deallocate(obj)
	}
}

// Get returns the entry for key, or the zero value and false if absent.
func (l *List[T, K, PT]) Get(key K) (PT, bool) {
	window := l.find(key)
	if !window.Current.IsNull() && window.HasCurrentKey && window.CurrentKey == key {
		return l.pool.Resolve(window.Current)
	}
	var zero PT
	return zero, false
}

// Remove marks key's entry for death and attempts to physically delink it.
// Returns false if key was not present.
func (l *List[T, K, PT]) Remove(key K) bool {
	for {
		window := l.find(key)
		if window.Current.IsNull() || !window.HasCurrentKey || window.CurrentKey != key {
			return false
		}
		current, ok := l.pool.Resolve(window.Current)
		if !ok {
			continue
		}
		successorOld := current.NextPtr().Load()
		if successorOld.IsMarked() {
			continue // someone else is already removing it; re-find
		}
		successorNew := successorOld.WithMark(true).WithABA(successorOld.ABA() + 1)
		if current.NextPtr().CompareAndSwap(successorOld, successorNew) {
			// Whether or not the delink below succeeds, the node is
			// logically removed: a later traversal will clean it up.
			l.delink(window.Predecessor, window.Current, successorNew)
			return true
		}
	}
}

// Contains is wait-free: a pure read-only traversal that never delinks.
func (l *List[T, K, PT]) Contains(key K) bool {
	current := l.head.Load()
	for !current.IsNull() {
		value, ok := l.pool.Resolve(current)
		if !ok {
			return false
		}
		switch {
		case value.Key() == key:
			return !value.NextPtr().Load().IsMarked()
		case cmp.Less(key, value.Key()):
			return false
		}
		current = value.NextPtr().Load()
	}
	return false
}

// find returns the predecessor/current window straddling key, retrying
// internally whenever a concurrent modification forces a restart.
func (l *List[T, K, PT]) find(key K) Window[T, K, PT] {
	for {
		window, retry := l.findOnce(key)
		if !retry {
			return window
		}
	}
}

func (l *List[T, K, PT]) findOnce(key K) (Window[T, K, PT], bool) {
	var window Window[T, K, PT]
	window.Current = l.head.Load()

	for !window.Current.IsNull() {
		currentObj, ok := l.pool.Resolve(window.Current)
		if !ok {
			return window, true
		}
		successor := currentObj.NextPtr().Load()

		for successor.IsMarked() {
			if !l.delink(window.Predecessor, window.Current, successor) {
				// CAS failed: predecessor changed under us, restart.
				return window, true
			}
			window.Current = successor
			if window.Current.IsNull() {
				break
			}
			currentObj, ok = l.pool.Resolve(window.Current)
			if !ok {
				return window, true
			}
			successor = currentObj.NextPtr().Load()
		}
		if window.Current.IsNull() {
			return window, false
		}

		window.CurrentKey = currentObj.Key()
		window.HasCurrentKey = true
		if !cmp.Less(window.CurrentKey, key) {
			return window, false
		}
		window.Predecessor = currentObj
		window.Current = successor
	}
	return window, false
}

// delink physically unlinks target (already marked for death via its own
// next pointer carrying the mark, passed in as successor) from between
// predecessor and successor. Returns whether this call performed the CAS;
// false means another goroutine already delinked it.
func (l *List[T, K, PT]) delink(predecessor PT, target, successor gcpool.Pointer) bool {
	successorAfter := successor.WithMark(false).WithABA(target.ABA() + 1)
	return l.nextSlot(predecessor).CompareAndSwap(target, successorAfter)
}

// UnsafeClear removes every entry. Not safe with concurrent writers.
func (l *List[T, K, PT]) UnsafeClear() {
	for current := l.head.Load(); !current.IsNull(); current = l.head.Load() {
		obj, ok := l.pool.Resolve(current)
		if !ok {
			break
		}
		marked := obj.NextPtr().Load().WithMark(true)
		obj.NextPtr().Store(marked)
		l.delink(nil, current, marked)
	}
}

// UnsafeSize counts live (unmarked) entries. Not safe with concurrent
// writers; there is no accurate size() for a lock-free list without
// blocking other operations.
func (l *List[T, K, PT]) UnsafeSize() int {
	n := 0
	for current := l.head.Load(); !current.IsNull(); {
		obj, ok := l.pool.Resolve(current)
		if !ok {
			break
		}
		if !obj.NextPtr().Load().IsMarked() {
			n++
		}
		current = obj.NextPtr().Load()
	}
	return n
}

// UnsafeDumpKeys writes every key and its mark state to w, in list order.
func (l *List[T, K, PT]) UnsafeDumpKeys(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "List (size=%d):\n", l.UnsafeSize()); err != nil {
		return err
	}
	for current := l.head.Load(); !current.IsNull(); {
		obj, ok := l.pool.Resolve(current)
		if !ok {
			break
		}
		if _, err := fmt.Fprintf(w, "  key=%v marked=%v\n", obj.Key(), obj.NextPtr().Load().IsMarked()); err != nil {
			return err
		}
		current = obj.NextPtr().Load()
	}
	return nil
}

// UnsafeKeys returns every live key in ascending order.
func (l *List[T, K, PT]) UnsafeKeys() []K {
	var keys []K
	for current := l.head.Load(); !current.IsNull(); {
		obj, ok := l.pool.Resolve(current)
		if !ok {
			break
		}
		if !obj.NextPtr().Load().IsMarked() {
			keys = append(keys, obj.Key())
		}
		current = obj.NextPtr().Load()
	}
	return keys
}

// UnsafeSorted reports whether every live key is strictly greater than the
// one before it, which a correctly functioning list always maintains.
func (l *List[T, K, PT]) UnsafeSorted() bool {
	keys := l.UnsafeKeys()
	for i := 1; i < len(keys); i++ {
		if !cmp.Less(keys[i-1], keys[i]) {
			return false
		}
	}
	return true
}

// UnsafeAsSet returns the live keys as a set.
func (l *List[T, K, PT]) UnsafeAsSet() map[K]struct{} {
	out := make(map[K]struct{})
	for _, k := range l.UnsafeKeys() {
		out[k] = struct{}{}
	}
	return out
}
