package gcpool

import "testing"

type testEntry struct {
	ptr   Pointer
	value int
}

func (e *testEntry) SetGCPointer(p Pointer) { e.ptr = p }

// TestAllocateSingleThreadSequence is concrete scenario 2 from spec.md §8:
// pool(5 gens, 2 segs x 3 objs); 4 allocate() calls return pointers with
// (gen,seg,offset) = (1,0,0), (1,0,1), (1,0,2), (1,1,0).
func TestAllocateSingleThreadSequence(t *testing.T) {
	f := New[testEntry, *testEntry](Config{
		MaxGenerations:        5,
		SegmentsPerGeneration: 2,
		ObjectsPerSegment:     3,
	})

	want := [][3]int{{1, 0, 0}, {1, 0, 1}, {1, 0, 2}, {1, 1, 0}}
	for i, w := range want {
		obj, ptr, err := f.Allocate(0)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if obj == nil {
			t.Fatalf("allocate %d: nil object", i)
		}
		got := [3]int{int(ptr.Generation()), int(ptr.Segment()), int(ptr.Offset())}
		if got != w {
			t.Errorf("allocate %d: got (gen,seg,off)=%v, want %v", i, got, w)
		}
		if obj.ptr != ptr {
			t.Errorf("allocate %d: object's stamped pointer %v != returned pointer %v", i, obj.ptr, ptr)
		}
	}
}

func TestResolveRoundTrip(t *testing.T) {
	f := New[testEntry, *testEntry](Config{MaxGenerations: 5, SegmentsPerGeneration: 2, ObjectsPerSegment: 3})

	obj, ptr, err := f.Allocate(0)
	if err != nil {
		t.Fatal(err)
	}
	obj.value = 42

	resolved, ok := f.Resolve(ptr)
	if !ok {
		t.Fatal("expected Resolve to find the live object")
	}
	if resolved.value != 42 {
		t.Errorf("expected resolved.value == 42, got %d", resolved.value)
	}
	if resolved != obj {
		t.Errorf("expected resolve to return the same address")
	}
}

func TestResolveNullPointer(t *testing.T) {
	f := New[testEntry, *testEntry](Config{MaxGenerations: 5, SegmentsPerGeneration: 2, ObjectsPerSegment: 3})
	if _, ok := f.Resolve(Null); ok {
		t.Fatal("expected Resolve(Null) to fail")
	}
}

func TestAllocateAdvancesGenerationWhenSegmentsExhausted(t *testing.T) {
	f := New[testEntry, *testEntry](Config{MaxGenerations: 5, SegmentsPerGeneration: 1, ObjectsPerSegment: 1})

	_, first, err := f.Allocate(0)
	if err != nil {
		t.Fatal(err)
	}
	_, second, err := f.Allocate(0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Generation() == first.Generation() {
		t.Fatalf("expected allocate to advance to a new generation once segments exhausted, stayed at %d", first.Generation())
	}
}

func TestRetireGenerationsPreservesMinimumHealthy(t *testing.T) {
	f := New[testEntry, *testEntry](Config{MaxGenerations: 10, SegmentsPerGeneration: 1, ObjectsPerSegment: 1})

	for i := 0; i < 5; i++ {
		if _, err := f.AdvanceGeneration(uint64(i + 1)); err != nil {
			t.Fatal(err)
		}
	}

	retired := f.RetireGenerations(^uint64(0)) // a watermark that predates nothing we'd refuse
	if f.currNowrap.Load()-f.headNowrap.Load()+1 < MinHealthyGenerations {
		t.Fatalf("retired past the minimum healthy floor: retired=%d", retired)
	}
}

func TestGenerationNumberSkipsReservedZero(t *testing.T) {
	for nowrap := int64(0); nowrap < int64(maxGenerationNumbers)*2; nowrap++ {
		if genNumber(nowrap) == 0 {
			t.Fatalf("genNumber(%d) produced reserved value 0", nowrap)
		}
	}
}
