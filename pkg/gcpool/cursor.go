package gcpool

// cursor is one worker's private allocation state within a forest: the
// generation and segment it currently owns, and the next free offset
// inside that segment. This is the Go-native substitute for the
// original's thread-local "tls.h" slot — instead of true TLS, callers
// pass an explicit worker id and the forest keeps one cursor per id in a
// registry (see Forest.cursorFor).
type cursor[T any] struct {
	generationNowrap int64
	generationNumber uint8
	segmentIdx       int32
	offset           int32
	valid            bool
}
