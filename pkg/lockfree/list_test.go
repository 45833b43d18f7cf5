package lockfree

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"

	"github.com/cuemby/ember/pkg/gcpool"
)

type dummyEntry struct {
	ptr gcpool.Pointer
	key uint32
	nxt gcpool.AtomicPointer
}

func (e *dummyEntry) SetGCPointer(p gcpool.Pointer)  { e.ptr = p }
func (e *dummyEntry) Key() uint32                    { return e.key }
func (e *dummyEntry) SetKey(k uint32)                { e.key = k }
func (e *dummyEntry) NextPtr() *gcpool.AtomicPointer { return &e.nxt }

func newDummyList(t *testing.T) *List[dummyEntry, uint32, *dummyEntry] {
	t.Helper()
	pool := gcpool.New[dummyEntry, *dummyEntry](gcpool.Config{
		MaxGenerations:        10,
		SegmentsPerGeneration: 10,
		ObjectsPerSegment:     100,
	})
	return New[dummyEntry, uint32, *dummyEntry](pool)
}

func TestSingleThreadMixed(t *testing.T) {
	l := newDummyList(t)

	if l.UnsafeSize() != 0 {
		t.Fatal("expected empty list")
	}
	if l.Contains(4) {
		t.Fatal("expected 4 absent")
	}
	if !l.UnsafeSorted() {
		t.Fatal("expected sorted (trivially, empty)")
	}

	item4, err := l.GetOrAdd(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if item4.Key() != 4 || l.UnsafeSize() != 1 || !l.Contains(4) || !l.UnsafeSorted() {
		t.Fatal("unexpected state after inserting 4")
	}
	var buf bytes.Buffer
	if err := l.UnsafeDumpKeys(&buf); err != nil {
		t.Fatal(err)
	}

	if l.Contains(3) {
		t.Fatal("expected 3 absent")
	}
	item3, err := l.GetOrAdd(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !l.Contains(3) || !l.Contains(4) || item3.Key() != 3 || item3 == item4 || l.UnsafeSize() != 2 || !l.UnsafeSorted() {
		t.Fatal("unexpected state after inserting 3")
	}

	item4Again, err := l.GetOrAdd(4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if item4Again != item4 || l.UnsafeSize() != 2 {
		t.Fatal("expected get_or_add(4) to return the existing node")
	}

	item3Again, err := l.GetOrAdd(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if item3Again != item3 || l.UnsafeSize() != 2 {
		t.Fatal("expected get_or_add(3) to return the existing node")
	}

	item7, err := l.GetOrAdd(7, 0)
	if err != nil {
		t.Fatal(err)
	}
	if item7.Key() != 7 || l.UnsafeSize() != 3 || !l.UnsafeSorted() {
		t.Fatal("unexpected state after inserting 7")
	}
	if !l.Remove(7) || l.Contains(7) {
		t.Fatal("expected remove(7) to succeed")
	}

	if _, err := l.GetOrAdd(1, 0); err != nil {
		t.Fatal(err)
	}
	if !l.Contains(1) || l.Contains(2) || !l.Contains(3) || !l.Contains(4) || l.UnsafeSize() != 3 || !l.UnsafeSorted() {
		t.Fatal("unexpected state after inserting 1")
	}

	if _, err := l.GetOrAdd(2, 0); err != nil {
		t.Fatal(err)
	}
	if !l.Contains(1) || !l.Contains(2) || !l.Contains(3) || !l.Contains(4) || l.UnsafeSize() != 4 || !l.UnsafeSorted() {
		t.Fatal("unexpected state after inserting 2")
	}

	if !l.Remove(2) || l.Contains(2) || l.UnsafeSize() != 3 {
		t.Fatal("unexpected state after removing 2")
	}
	if l.Remove(2) {
		t.Fatal("expected second remove(2) to fail")
	}

	if !l.Remove(1) || l.Contains(1) || l.UnsafeSize() != 2 {
		t.Fatal("unexpected state after removing 1")
	}

	if l.Remove(5) {
		t.Fatal("expected remove(5) to fail: never inserted")
	}
	if !l.Remove(4) || l.Contains(4) || !l.Contains(3) || l.UnsafeSize() != 1 {
		t.Fatal("unexpected state after removing 4")
	}

	l.UnsafeClear()
	if l.UnsafeSize() != 0 {
		t.Fatal("expected empty list after clear")
	}
}

func TestSingleThreadRandom(t *testing.T) {
	l := newDummyList(t)
	rng := rand.New(rand.NewSource(1234))
	answer := make(map[uint32]struct{})

	for i := 0; i < 1000; i++ {
		del := rng.Int31n(5) == 0
		key := uint32(rng.Int31n(500))
		if del {
			_, existed := answer[key]
			delete(answer, key)
			got := l.Remove(key)
			if got != existed {
				t.Fatalf("i=%d key=%d: remove returned %v, want %v", i, key, got, existed)
			}
		} else {
			answer[key] = struct{}{}
			if _, err := l.GetOrAdd(key, 0); err != nil {
				t.Fatal(err)
			}
		}
		if l.UnsafeSize() != len(answer) {
			t.Fatalf("i=%d key=%d: size=%d, want %d", i, key, l.UnsafeSize(), len(answer))
		}
		if !l.UnsafeSorted() {
			t.Fatalf("i=%d key=%d: not sorted", i, key)
		}
	}

	result := l.UnsafeAsSet()
	if len(result) != len(answer) {
		t.Fatalf("final set size=%d, want %d", len(result), len(answer))
	}
	for k := range answer {
		if _, ok := result[k]; !ok {
			t.Fatalf("missing key %d in final set", k)
		}
	}

	l.UnsafeClear()
	if l.UnsafeSize() != 0 {
		t.Fatal("expected empty list after clear")
	}
}

func TestConcurrentInsertOnly(t *testing.T) {
	const workers = 6
	const repsPerWorker = 2000

	l := newDummyList(t)
	var wg sync.WaitGroup
	inserted := make([][]uint32, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id)))
			for i := 0; i < repsPerWorker; i++ {
				key := uint32(rng.Int31n(repsPerWorker * 3))
				inserted[id] = append(inserted[id], key)
				if _, err := l.GetOrAdd(key, uint32(id)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if !l.UnsafeSorted() {
		t.Fatal("expected list sorted after concurrent inserts")
	}

	want := make(map[uint32]struct{})
	for _, keys := range inserted {
		for _, k := range keys {
			want[k] = struct{}{}
		}
	}
	got := l.UnsafeAsSet()
	if len(got) != len(want) {
		t.Fatalf("got %d live keys, want %d", len(got), len(want))
	}
	for k := range want {
		if _, ok := got[k]; !ok {
			t.Fatalf("missing inserted key %d", k)
		}
	}
}
