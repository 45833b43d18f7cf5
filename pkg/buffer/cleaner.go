package buffer

import (
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/volumes"
)

const defaultCleanerInterval = 500 * time.Millisecond

// cleanerState is one volume's background page cleaner: a single
// coordinator goroutine that selects dirty candidates and fans them out
// to cfg.PageWriterCount worker goroutines, mirroring spec.md §4.6's
// "master selects runs; worker threads claim runs and perform I/O"
// design, collapsed here from physical disk-stripe runs to one page per
// unit of work (this port has no on-disk stripe geometry to group by).
type cleanerState struct {
	volumeID volumes.VolumeID
	wake     chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
}

// StartCleaner launches volumeID's background page cleaner, sweeping
// every interval (or immediately when Unfix/SetDirty crosses
// cfg.DirtyThreshold).
func (p *Pool) StartCleaner(volumeID volumes.VolumeID, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanerInterval
	}
	p.cleanersMu.Lock()
	if _, ok := p.cleaners[volumeID]; ok {
		p.cleanersMu.Unlock()
		return
	}
	c := &cleanerState{
		volumeID: volumeID,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.cleaners[volumeID] = c
	p.cleanersMu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-c.wake:
			case <-c.stopCh:
				return
			}
			if n, err := p.sweepVolume(volumeID); err != nil {
				p.logger.Warn().Err(err).Uint32("volume", uint32(volumeID)).Msg("page cleaner sweep failed")
			} else if n > 0 {
				p.logger.Debug().Uint32("volume", uint32(volumeID)).Int("cleaned", n).Msg("page cleaner sweep")
			}
		}
	}()
}

// StopCleaner halts volumeID's background cleaner and waits for its
// current sweep to finish.
func (p *Pool) StopCleaner(volumeID volumes.VolumeID) {
	p.cleanersMu.Lock()
	c, ok := p.cleaners[volumeID]
	if ok {
		delete(p.cleaners, volumeID)
	}
	p.cleanersMu.Unlock()
	if !ok {
		return
	}
	close(c.stopCh)
	<-c.done
}

// sweepVolume is one coordinator pass: collect dirty candidates for
// volumeID, skip pages with pending write-order dependencies, and fan the
// remainder out across cfg.PageWriterCount workers.
func (p *Pool) sweepVolume(volumeID volumes.VolumeID) (int, error) {
	p.framesMu.Lock()
	var candidates []*BCB
	for _, bcb := range p.frames {
		if bcb.PageID.IsNull() || bcb.PageID.Volume != volumeID || !bcb.Dirty() {
			continue
		}
		candidates = append(candidates, bcb)
	}
	p.framesMu.Unlock()

	if len(candidates) == 0 {
		return 0, nil
	}

	workers := p.cfg.PageWriterCount
	if workers <= 0 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		cleaned  int
		firstErr error
	)
	work := make(chan *BCB, len(candidates))
	for _, bcb := range candidates {
		work <- bcb
	}
	close(work)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for bcb := range work {
				ok, err := p.cleanOne(bcb)
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if ok {
					cleaned++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return cleaned, firstErr
	}

	vol, ok := p.registry.Volume(volumeID)
	if !ok {
		return cleaned, emberr.New(emberr.KindBadVolume, "volume %d not mounted", volumeID)
	}
	if err := vol.Sync(); err != nil {
		return cleaned, err
	}
	return cleaned, nil
}

// cleanOne writes a single dirty page to stable storage, per spec.md
// §4.6's per-run steps 1-5. Returns (false, nil) for a candidate that
// must be retried next sweep (latch contention, a concurrent clean, or a
// non-empty write-order dependency list) rather than treating that as an
// error.
func (p *Pool) cleanOne(bcb *BCB) (bool, error) {
	if p.hasPendingDependencies(bcb) {
		return false, nil
	}
	if !bcb.Latch.AttemptRead() {
		return false, nil
	}
	if !bcb.Dirty() {
		bcb.Latch.ReleaseRead()
		return false, nil
	}

	copyBuf := make([]byte, len(bcb.Frame))
	copy(copyBuf, bcb.Frame)
	recLSN := bcb.RecLSN()
	flushTo := bcb.PageLSN()
	if flushTo.Less(recLSN) {
		flushTo = recLSN
	}
	bcb.setOldRecLSN(recLSN)
	bcb.clearRecLSN()
	bcb.SetDirty(false)
	bcb.Latch.ReleaseRead()

	if err := p.log.Flush(flushTo, true); err != nil {
		return false, err
	}

	vol, ok := p.registry.Volume(bcb.PageID.Volume)
	if !ok {
		return false, emberr.New(emberr.KindBadVolume, "volume %d not mounted", bcb.PageID.Volume)
	}
	stampChecksum(copyBuf)
	if err := vol.WritePage(bcb.PageID.Page, copyBuf); err != nil {
		return false, err
	}

	bcb.clearOldRecLSN()
	p.clearDependencies(bcb)
	return true, nil
}
