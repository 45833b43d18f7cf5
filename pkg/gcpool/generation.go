package gcpool

import (
	"runtime"
	"sync/atomic"
)

// generation owns up to segsPerGeneration segments, claimed one at a time
// via CAS on allocatedSegments. epoch is a caller-defined monotonic marker
// (commonly an xct sequence number) stamped when the generation is
// created; retireGenerations compares it against a caller-supplied low
// water mark to decide when the generation can no longer be referenced by
// any live transaction.
type generation[T any] struct {
	number            uint8
	epoch             atomic.Uint64
	allocatedSegments atomic.Int32
	segments          []atomic.Pointer[segment[T]]
}

func newGeneration[T any](number uint8, segsPerGeneration int32, epoch uint64) *generation[T] {
	g := &generation[T]{
		number:   number,
		segments: make([]atomic.Pointer[segment[T]], segsPerGeneration),
	}
	g.epoch.Store(epoch)
	return g
}

// occupySegment claims the next unclaimed segment slot via CAS and
// creates it. Returns the claimed index.
func (g *generation[T]) occupySegment(objectsPerSegment int32) (int32, *segment[T], bool) {
	for {
		cur := g.allocatedSegments.Load()
		if cur >= int32(len(g.segments)) {
			return 0, nil, false
		}
		if g.allocatedSegments.CompareAndSwap(cur, cur+1) {
			seg := newSegment[T](objectsPerSegment)
			g.segments[cur].Store(seg)
			return cur, seg, true
		}
		// Someone else claimed a slot concurrently; retry.
	}
}

// segmentAt returns segment idx, briefly spinning if another goroutine's
// occupySegment call has claimed the slot but not yet published it.
func (g *generation[T]) segmentAt(idx int32) *segment[T] {
	for {
		if seg := g.segments[idx].Load(); seg != nil {
			return seg
		}
		runtime.Gosched()
	}
}
