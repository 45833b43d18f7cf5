package buffer

import (
	"sync"

	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/elog"
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
	"github.com/rs/zerolog"
)

// Pool is the buffer pool (C6): a fixed set of frames, indexed by page id
// via a short-lived map lock, replaced via a clock algorithm over the
// hot bit.
type Pool struct {
	cfg      econfig.Config
	logger   zerolog.Logger
	log      *wal.Manager
	registry volumes.Registry

	framesMu  sync.Mutex
	index     map[volumes.PageID]*BCB
	frames    []*BCB
	clockHand int
	// inTransit tracks pages currently being loaded by a Fix miss, so a
	// second concurrent Fix for the same absent page waits for the first
	// to publish instead of independently evicting its own victim frame
	// (spec.md §4.6's in-transit-in list; without it two racing misses on
	// the same page each claim a frame and only one survives in index,
	// leaking the other).
	inTransit map[volumes.PageID]chan struct{}

	woMu sync.Mutex

	cleanersMu sync.Mutex
	cleaners   map[volumes.VolumeID]*cleanerState
}

// New constructs a Pool with cfg.BufferPoolPages frames.
func New(cfg econfig.Config, log *wal.Manager, registry volumes.Registry) *Pool {
	n := cfg.BufferPoolPages
	if n <= 0 {
		n = 1
	}
	p := &Pool{
		cfg:       cfg,
		logger:    elog.WithComponent("buffer"),
		log:       log,
		registry:  registry,
		index:     make(map[volumes.PageID]*BCB, n),
		frames:    make([]*BCB, n),
		cleaners:  make(map[volumes.VolumeID]*cleanerState),
		inTransit: make(map[volumes.PageID]chan struct{}),
	}
	for i := range p.frames {
		p.frames[i] = newBCB()
	}
	return p
}

func (p *Pool) acquireLatch(bcb *BCB, mode latch.Mode) {
	if mode == latch.Writer {
		bcb.Latch.AcquireWrite()
	} else {
		bcb.Latch.AcquireRead()
	}
}

// updateRecLSN stamps rec_lsn with the log's current tail LSN the first
// time a page is dirtied since its last clean, per spec.md §4.6: "Every
// EX fix calls update_rec_lsn ... only when it was null."
func (p *Pool) updateRecLSN(bcb *BCB) {
	if bcb.RecLSN().IsNull() {
		bcb.setRecLSN(p.log.CurrentLSN())
	}
}

// Fix returns the page's BCB, latched in mode and pinned. On a miss it
// evicts a victim frame via clock replacement, flushing it first if
// dirty, then loads the page from its volume (skipped if noRead, for a
// freshly allocated page with no prior contents).
func (p *Pool) Fix(id volumes.PageID, mode latch.Mode, noRead bool) (*BCB, error) {
	for {
		p.framesMu.Lock()
		if bcb, ok := p.index[id]; ok {
			bcb.pinCount.Add(1)
			p.framesMu.Unlock()
			p.acquireLatch(bcb, mode)
			if mode == latch.Writer {
				p.updateRecLSN(bcb)
			}
			return bcb, nil
		}
		if wait, ok := p.inTransit[id]; ok {
			p.framesMu.Unlock()
			<-wait
			continue
		}
		wait := make(chan struct{})
		p.inTransit[id] = wait
		p.framesMu.Unlock()

		bcb, err := p.fixMiss(id, mode, noRead, wait)
		return bcb, err
	}
}

// fixMiss does the actual victim-eviction-and-load work for a Fix miss.
// The caller has already published wait to p.inTransit[id]; fixMiss clears
// it (closing wait to release any Fix that queued up behind this one)
// before returning, on every path including errors.
func (p *Pool) fixMiss(id volumes.PageID, mode latch.Mode, noRead bool, wait chan struct{}) (*BCB, error) {
	clearTransit := func() {
		p.framesMu.Lock()
		delete(p.inTransit, id)
		p.framesMu.Unlock()
		close(wait)
	}

	bcb, err := p.replacement()
	if err != nil {
		clearTransit()
		return nil, err
	}

	if bcb.Dirty() {
		if err := p.flushVictim(bcb); err != nil {
			bcb.Latch.ReleaseWrite()
			clearTransit()
			return nil, err
		}
	}

	bcb.reset(id)

	if !noRead {
		if err := p.readPage(bcb); err != nil {
			bcb.Latch.ReleaseWrite()
			clearTransit()
			return nil, err
		}
	} else {
		vol, ok := p.registry.Volume(id.Volume)
		if !ok {
			bcb.Latch.ReleaseWrite()
			clearTransit()
			return nil, emberr.New(emberr.KindBadVolume, "volume %d not mounted", id.Volume)
		}
		bcb.Frame = make([]byte, vol.PageSize())
	}

	p.framesMu.Lock()
	p.index[id] = bcb
	delete(p.inTransit, id)
	p.framesMu.Unlock()
	close(wait)

	bcb.pinCount.Add(1)

	if mode == latch.Writer {
		p.updateRecLSN(bcb)
	} else {
		bcb.Latch.Downgrade()
	}
	return bcb, nil
}

func (p *Pool) readPage(bcb *BCB) error {
	vol, ok := p.registry.Volume(bcb.PageID.Volume)
	if !ok {
		return emberr.New(emberr.KindBadVolume, "volume %d not mounted", bcb.PageID.Volume)
	}
	data, err := vol.ReadPage(bcb.PageID.Page)
	if err != nil {
		return err
	}
	if err := verifyChecksum(data); err != nil {
		return err
	}
	bcb.Frame = data
	return nil
}

// flushVictim writes an about-to-be-evicted dirty frame back to its
// volume before the frame is repurposed, per spec.md §4.6's "if the
// victim is dirty ... call _replace_out".
func (p *Pool) flushVictim(bcb *BCB) error {
	flushTo := bcb.PageLSN()
	if rec := bcb.RecLSN(); flushTo.Less(rec) {
		flushTo = rec
	}
	if err := p.log.Flush(flushTo, true); err != nil {
		return err
	}
	vol, ok := p.registry.Volume(bcb.PageID.Volume)
	if !ok {
		return emberr.New(emberr.KindBadVolume, "volume %d not mounted", bcb.PageID.Volume)
	}
	stampChecksum(bcb.Frame)
	if err := vol.WritePage(bcb.PageID.Page, bcb.Frame); err != nil {
		return err
	}
	p.clearDependencies(bcb)
	return nil
}

// replacement runs the clock algorithm over the frame ring: a pinned
// frame is skipped, a hot (recently referenced) unpinned frame loses its
// hot bit and gets a second chance, and the first unpinned, non-hot frame
// that can be EX-latched becomes the victim, returned still EX-latched
// and already detached from the index.
func (p *Pool) replacement() (*BCB, error) {
	p.framesMu.Lock()
	defer p.framesMu.Unlock()

	n := len(p.frames)
	for i := 0; i < 2*n; i++ {
		idx := p.clockHand
		p.clockHand = (p.clockHand + 1) % n
		bcb := p.frames[idx]

		if bcb.PinCount() != 0 {
			continue
		}
		if bcb.Hot() {
			bcb.SetHot(false)
			continue
		}
		if !bcb.Latch.AttemptWrite() {
			continue
		}
		if bcb.PinCount() != 0 {
			bcb.Latch.ReleaseWrite()
			continue
		}
		if !bcb.PageID.IsNull() {
			delete(p.index, bcb.PageID)
		}
		return bcb, nil
	}
	return nil, emberr.New(emberr.KindHotPage, "buffer pool exhausted: no evictable frame found")
}

// Unfix releases a pin acquired by Fix/Refix. mode must match the mode
// the caller fixed (or last upgraded/downgraded to); dirty marks the page
// as modified, and refBit sets the clock hot bit for the next sweep.
func (p *Pool) Unfix(bcb *BCB, mode latch.Mode, dirty bool, refBit bool) {
	if dirty {
		bcb.SetDirty(true)
		p.maybeKickCleaner(bcb.PageID.Volume)
	} else if mode == latch.Writer && bcb.PinCount() == 1 && bcb.Dirty() && bcb.RecLSN().IsNull() {
		bcb.SetDirty(false)
	}
	bcb.SetHot(refBit)

	if mode == latch.Writer {
		bcb.Latch.ReleaseWrite()
	} else {
		bcb.Latch.ReleaseRead()
	}
	bcb.pinCount.Add(-1)
}

// Refix re-acquires a latch (in mode) on a BCB the caller still has a
// reference to but had fully released, pinning it again.
func (p *Pool) Refix(bcb *BCB, mode latch.Mode) {
	bcb.pinCount.Add(1)
	p.acquireLatch(bcb, mode)
	if mode == latch.Writer {
		p.updateRecLSN(bcb)
	}
}

// UpgradeLatch attempts an in-place SH->EX upgrade; if that would block
// (another reader is present), it releases and re-acquires, so the
// caller may observe a different page LSN on return.
func (p *Pool) UpgradeLatch(bcb *BCB) {
	if bcb.Latch.AttemptUpgrade() {
		return
	}
	bcb.Latch.ReleaseRead()
	bcb.Latch.AcquireWrite()
}

// DowngradeLatch converts an EX hold to SH in place.
func (p *Pool) DowngradeLatch(bcb *BCB) {
	bcb.Latch.Downgrade()
}

// SetDirty marks bcb dirty without going through Unfix, for callers that
// mutate a page and intend to keep it fixed afterward.
func (p *Pool) SetDirty(bcb *BCB) {
	bcb.SetDirty(true)
	p.maybeKickCleaner(bcb.PageID.Volume)
}

// DiscardPinnedPage removes bcb from the pool without writing it back,
// for a caller that holds it EX-latched and pinned (e.g. a page being
// deallocated). The frame becomes immediately available for reuse.
func (p *Pool) DiscardPinnedPage(bcb *BCB) {
	p.framesMu.Lock()
	delete(p.index, bcb.PageID)
	p.framesMu.Unlock()

	p.clearDependencies(bcb)
	bcb.reset(volumes.PageID{})
	bcb.pinCount.Add(-1)
	bcb.Latch.ReleaseWrite()
}

// Dispose forcibly evicts a resident page without flushing it, discarding
// any unwritten modifications. Exposed for crash-simulation tests (spec.md
// §9's `dispose()` hook); not used by any non-test code path.
func (p *Pool) Dispose(id volumes.PageID) bool {
	p.framesMu.Lock()
	bcb, ok := p.index[id]
	if !ok {
		p.framesMu.Unlock()
		return false
	}
	delete(p.index, id)
	p.framesMu.Unlock()

	bcb.Latch.AcquireWrite()
	p.clearDependencies(bcb)
	bcb.reset(volumes.PageID{})
	bcb.Latch.ReleaseWrite()
	return true
}

// DirtyPages reports the number of currently dirty frames, the stat
// pkg/metrics.BufferPoolStats reports.
func (p *Pool) DirtyPages() int {
	p.framesMu.Lock()
	defer p.framesMu.Unlock()
	n := 0
	for _, bcb := range p.frames {
		if !bcb.PageID.IsNull() && bcb.Dirty() {
			n++
		}
	}
	return n
}

// BufferPoolStats implements metrics.StatsSource's buffer pool leg.
func (p *Pool) BufferPoolStats() metrics.BufferPoolStats {
	return metrics.BufferPoolStats{DirtyPages: p.DirtyPages()}
}

// MinRecLSN scans every dirty BCB and returns the oldest rec_lsn, never
// the tentative old_rec_lsn a page cleaner is carrying mid-write — the
// safe low-water mark the checkpoint manager uses (spec.md §4.6, §4.7
// step 6).
func (p *Pool) MinRecLSN() wal.LSN {
	p.framesMu.Lock()
	defer p.framesMu.Unlock()
	min := wal.Null
	for _, bcb := range p.frames {
		if bcb.PageID.IsNull() || !bcb.Dirty() {
			continue
		}
		lsn := bcb.RecLSN()
		if lsn.IsNull() {
			continue
		}
		if min.IsNull() || lsn.Less(min) {
			min = lsn
		}
	}
	return min
}

// DirtyPageTable returns a (pageID, recLSN) snapshot of every dirty BCB,
// the chkpt_bf_tab record payload spec.md §4.7 step 6 emits.
func (p *Pool) DirtyPageTable() []DirtyPageEntry {
	p.framesMu.Lock()
	defer p.framesMu.Unlock()
	var out []DirtyPageEntry
	for _, bcb := range p.frames {
		if bcb.PageID.IsNull() || !bcb.Dirty() {
			continue
		}
		out = append(out, DirtyPageEntry{PageID: bcb.PageID, RecLSN: bcb.RecLSN()})
	}
	return out
}

// DirtyPageEntry is one row of DirtyPageTable's snapshot.
type DirtyPageEntry struct {
	PageID volumes.PageID
	RecLSN wal.LSN
}

func (p *Pool) maybeKickCleaner(volumeID volumes.VolumeID) {
	if p.DirtyPages() < p.cfg.DirtyThreshold {
		return
	}
	p.cleanersMu.Lock()
	c, ok := p.cleaners[volumeID]
	p.cleanersMu.Unlock()
	if !ok {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}
