package gcpool

// segment holds a fixed-size, preallocated array of objects. Its backing
// slice is never resized after creation, so &objects[i] stays stable for
// the segment's lifetime — required because Pointer.Offset indexes into
// it directly.
type segment[T any] struct {
	objects []T
}

func newSegment[T any](size int32) *segment[T] {
	return &segment[T]{objects: make([]T, size)}
}
