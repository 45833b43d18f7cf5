package buffer

import (
	"sync/atomic"

	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
)

// BCB is a buffer control block: one frame slot in the pool, independently
// latched and pinned. Mirrors bf.cpp's bf_tree_cb_t, minus the fields this
// port has no use for (swizzling, in-doubt recovery bits).
type BCB struct {
	PageID volumes.PageID
	Frame  []byte

	Latch    latch.RWSpinlock
	pinCount atomic.Int32

	dirty atomic.Bool
	hot   atomic.Bool

	recLSN    atomic.Pointer[wal.LSN]
	oldRecLSN atomic.Pointer[wal.LSN]
	pageLSN   atomic.Pointer[wal.LSN]

	predecessors map[*BCB]struct{}
	successors   map[*BCB]struct{}
}

func newBCB() *BCB {
	return &BCB{
		predecessors: make(map[*BCB]struct{}),
		successors:   make(map[*BCB]struct{}),
	}
}

func (b *BCB) Dirty() bool { return b.dirty.Load() }
func (b *BCB) SetDirty(v bool) { b.dirty.Store(v) }

func (b *BCB) Hot() bool      { return b.hot.Load() }
func (b *BCB) SetHot(v bool)  { b.hot.Store(v) }

func (b *BCB) PinCount() int32 { return b.pinCount.Load() }

// RecLSN returns the LSN of the oldest log record that dirtied this page
// since it was last clean, or wal.Null if the page is clean.
func (b *BCB) RecLSN() wal.LSN {
	p := b.recLSN.Load()
	if p == nil {
		return wal.Null
	}
	return *p
}

func (b *BCB) setRecLSN(lsn wal.LSN) { b.recLSN.Store(&lsn) }
func (b *BCB) clearRecLSN()          { b.recLSN.Store(nil) }

// OldRecLSN returns the tentative rec_lsn a page cleaner is carrying while
// a write to stable storage for this page is in flight, or wal.Null.
func (b *BCB) OldRecLSN() wal.LSN {
	p := b.oldRecLSN.Load()
	if p == nil {
		return wal.Null
	}
	return *p
}

func (b *BCB) setOldRecLSN(lsn wal.LSN) { b.oldRecLSN.Store(&lsn) }
func (b *BCB) clearOldRecLSN()          { b.oldRecLSN.Store(nil) }

// PageLSN returns the LSN of the last log record that updated this page
// (the per-page chain head a new update's page_prev field links from),
// or wal.Null for a page with no applied updates yet.
func (b *BCB) PageLSN() wal.LSN {
	p := b.pageLSN.Load()
	if p == nil {
		return wal.Null
	}
	return *p
}

// SetPageLSN advances the page's LSN chain head. Caller must hold the
// BCB's latch in write mode.
func (b *BCB) SetPageLSN(lsn wal.LSN) { b.pageLSN.Store(&lsn) }

// reset re-stamps the BCB for a newly loaded page, clearing all prior
// page state. Caller must hold the BCB's latch in write mode.
func (b *BCB) reset(id volumes.PageID) {
	b.PageID = id
	b.Frame = nil
	b.dirty.Store(false)
	b.hot.Store(false)
	b.clearRecLSN()
	b.clearOldRecLSN()
	b.pageLSN.Store(nil)
}
