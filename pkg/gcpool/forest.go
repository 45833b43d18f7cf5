package gcpool

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/ember/pkg/emberr"
)

// MinHealthyGenerations is the floor retireGenerations preserves: the
// forest never retires down to fewer than this many live generations,
// per spec.md §4.1.
const MinHealthyGenerations = 2

// maxGenerationNumbers is the number of distinct non-null generation
// numbers available (1..255); generation numbering wraps through this
// range, skipping the reserved value 0.
const maxGenerationNumbers = 255

// Entry is implemented by *T for any object type stored in a Forest[T].
// Allocate stamps the freshly allocated object's own GC-pointer encoding
// into it via SetGCPointer, mirroring the original's gc_pointer field
// convention.
type Entry[T any] interface {
	*T
	SetGCPointer(Pointer)
}

// Config bounds a Forest's generation/segment/object capacity. All three
// are capped by the Pointer encoding (generation and segment each 8 bits,
// offset 16 bits).
type Config struct {
	MaxGenerations        int
	SegmentsPerGeneration int32
	ObjectsPerSegment     int32
}

// Forest is a lock-free, generation-based object-pool forest (C1).
type Forest[T any, PT Entry[T]] struct {
	cfg Config

	generations [256]atomic.Pointer[generation[T]]
	headNowrap  atomic.Int64
	currNowrap  atomic.Int64

	cursorsMu sync.Mutex
	cursors   map[uint32]*cursor[T]

	// WakeFn is called when an allocating worker discovers the current
	// generation is out of segments and must wait for a new one to be
	// created — the "wake-up functor" spec.md §4.1 calls out for the case
	// where background pre-allocation has fallen behind. Optional.
	WakeFn func()
}

// New constructs a Forest with one initial generation already created
// (generation number 1, epoch 0).
func New[T any, PT Entry[T]](cfg Config) *Forest[T, PT] {
	if cfg.MaxGenerations <= 0 || cfg.MaxGenerations > maxGenerationNumbers {
		cfg.MaxGenerations = maxGenerationNumbers
	}
	f := &Forest[T, PT]{
		cfg:     cfg,
		cursors: make(map[uint32]*cursor[T]),
	}
	f.currNowrap.Store(-1)
	f.headNowrap.Store(0)
	_, _ = f.AdvanceGeneration(0)
	return f
}

func genNumber(nowrap int64) uint8 {
	return uint8(nowrap%maxGenerationNumbers) + 1
}

// AdvanceGeneration atomically creates a new generation stamped with
// epoch, failing with KindOutOfMemory ("too many generations") if doing
// so would exceed cfg.MaxGenerations concurrently live generations.
func (f *Forest[T, PT]) AdvanceGeneration(epoch uint64) (uint8, error) {
	for {
		cur := f.currNowrap.Load()
		next := cur + 1
		if next-f.headNowrap.Load() >= int64(f.cfg.MaxGenerations) {
			return 0, emberr.New(emberr.KindOutOfMemory, "too many generations (max %d)", f.cfg.MaxGenerations)
		}
		if f.currNowrap.CompareAndSwap(cur, next) {
			num := genNumber(next)
			gen := newGeneration[T](num, f.cfg.SegmentsPerGeneration, epoch)
			f.generations[num].Store(gen)
			return num, nil
		}
	}
}

// RetireGenerations monotonically advances the head generation while the
// generation after it predates lowWaterMark, never retiring past
// MinHealthyGenerations live generations. Returns the number retired.
func (f *Forest[T, PT]) RetireGenerations(lowWaterMark uint64) int {
	retired := 0
	for {
		head := f.headNowrap.Load()
		curr := f.currNowrap.Load()
		if curr-head < MinHealthyGenerations {
			break
		}
		nextOldest := f.generations[genNumber(head+1)].Load()
		if nextOldest == nil || nextOldest.epoch.Load() >= lowWaterMark {
			break
		}
		if !f.headNowrap.CompareAndSwap(head, head+1) {
			continue
		}
		f.generations[genNumber(head)].Store(nil)
		retired++
	}
	return retired
}

// Resolve dereferences a Pointer, returning (nil, false) for a null
// pointer or one referencing a retired generation.
func (f *Forest[T, PT]) Resolve(p Pointer) (PT, bool) {
	if p.IsNull() {
		return nil, false
	}
	gen := f.generations[p.Generation()].Load()
	if gen == nil {
		return nil, false
	}
	if int(p.Segment()) >= len(gen.segments) {
		return nil, false
	}
	seg := gen.segments[p.Segment()].Load()
	if seg == nil {
		return nil, false
	}
	if int(p.Offset()) >= len(seg.objects) {
		return nil, false
	}
	return PT(&seg.objects[p.Offset()]), true
}

// cursorFor returns (creating if absent) the calling worker's private
// allocation cursor.
func (f *Forest[T, PT]) cursorFor(workerID uint32) *cursor[T] {
	f.cursorsMu.Lock()
	defer f.cursorsMu.Unlock()
	c, ok := f.cursors[workerID]
	if !ok {
		c = &cursor[T]{}
		f.cursors[workerID] = c
	}
	return c
}

// Allocate hands out the next object owned by workerID's cursor, claiming
// a new segment or generation as needed. Never blocks indefinitely: if
// pre-allocation has fallen behind, it invokes WakeFn (if set) and spins
// briefly rather than suspending the caller.
func (f *Forest[T, PT]) Allocate(workerID uint32) (PT, Pointer, error) {
	c := f.cursorFor(workerID)

	for attempts := 0; attempts < 64; attempts++ {
		curr := f.currNowrap.Load()
		gen := f.generations[genNumber(curr)].Load()
		if gen == nil {
			// Current generation was retired from under us (extremely
			// unlikely given MinHealthyGenerations, but handle it).
			continue
		}

		if !c.valid || c.generationNowrap != curr {
			idx, _, ok := gen.occupySegment(f.cfg.ObjectsPerSegment)
			if !ok {
				if f.WakeFn != nil {
					f.WakeFn()
				}
				if _, err := f.AdvanceGeneration(uint64(curr) + 1); err != nil {
					return nil, 0, err
				}
				continue
			}
			c.generationNowrap = curr
			c.generationNumber = gen.number
			c.segmentIdx = idx
			c.offset = 0
			c.valid = true
		}

		if c.offset >= f.cfg.ObjectsPerSegment {
			idx, _, ok := gen.occupySegment(f.cfg.ObjectsPerSegment)
			if !ok {
				if f.WakeFn != nil {
					f.WakeFn()
				}
				if _, err := f.AdvanceGeneration(uint64(curr) + 1); err != nil {
					return nil, 0, err
				}
				c.valid = false
				continue
			}
			c.segmentIdx = idx
			c.offset = 0
		}

		seg := gen.segmentAt(c.segmentIdx)
		obj := &seg.objects[c.offset]
		ptr := Encode(c.generationNumber, uint8(c.segmentIdx), uint16(c.offset), 0, false)
		PT(obj).SetGCPointer(ptr)
		c.offset++
		return PT(obj), ptr, nil
	}

	return nil, 0, emberr.New(emberr.KindOutOfMemory, "worker %d: could not allocate after generation advance retries", workerID)
}

// Deallocate is a no-op at the object level: spec.md §4.1 reclaims space
// only by retiring whole generations. Kept as an explicit call so callers
// mirror the original's allocate/deallocate pairing.
func (f *Forest[T, PT]) Deallocate(PT) {}
