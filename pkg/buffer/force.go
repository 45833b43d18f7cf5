package buffer

import (
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
)

// ForceAll writes every dirty frame to stable storage and waits for the
// writes to complete. Used by a clean shutdown and by recovery's redo
// pass completion.
func (p *Pool) ForceAll() error {
	return p.forceFilter(func(*BCB) bool { return true })
}

// ForceStore writes every dirty page belonging to (volumeID, storeID).
func (p *Pool) ForceStore(volumeID volumes.VolumeID, storeID uint32) error {
	return p.forceFilter(func(bcb *BCB) bool {
		return bcb.PageID.Volume == volumeID && bcb.PageID.Store == storeID
	})
}

// ForceVolume writes every dirty page belonging to volumeID.
func (p *Pool) ForceVolume(volumeID volumes.VolumeID) error {
	return p.forceFilter(func(bcb *BCB) bool {
		return bcb.PageID.Volume == volumeID
	})
}

// ForceUntilLSN writes every dirty page whose rec_lsn is at or before lsn,
// the step the checkpoint manager uses to keep the oldest dirty page's
// rec_lsn (and thus the redo start point) from receding too far, per
// spec.md §4.7.
func (p *Pool) ForceUntilLSN(lsn wal.LSN) error {
	return p.forceFilter(func(bcb *BCB) bool {
		rec := bcb.RecLSN()
		return !rec.IsNull() && !lsn.Less(rec)
	})
}

// forceFilter writes every currently dirty frame matching match to stable
// storage, serially: force is a rare, heavyweight operation (shutdown,
// checkpoint catch-up), not a hot path worth parallelizing like the page
// cleaner's routine sweeps.
func (p *Pool) forceFilter(match func(*BCB) bool) error {
	p.framesMu.Lock()
	var candidates []*BCB
	for _, bcb := range p.frames {
		if bcb.PageID.IsNull() || !bcb.Dirty() || !match(bcb) {
			continue
		}
		candidates = append(candidates, bcb)
	}
	p.framesMu.Unlock()

	touched := make(map[volumes.VolumeID]struct{})
	for _, bcb := range candidates {
		if err := p.forceOne(bcb); err != nil {
			return err
		}
		touched[bcb.PageID.Volume] = struct{}{}
	}
	for volumeID := range touched {
		vol, ok := p.registry.Volume(volumeID)
		if !ok {
			continue
		}
		if err := vol.Sync(); err != nil {
			return err
		}
	}
	return nil
}

// forceOne writes a single dirty BCB to stable storage and clears its
// dirty state, under its own latch.
func (p *Pool) forceOne(bcb *BCB) error {
	bcb.Latch.AcquireRead()
	if !bcb.Dirty() {
		bcb.Latch.ReleaseRead()
		return nil
	}
	copyBuf := make([]byte, len(bcb.Frame))
	copy(copyBuf, bcb.Frame)
	recLSN := bcb.RecLSN()
	flushTo := bcb.PageLSN()
	if flushTo.Less(recLSN) {
		flushTo = recLSN
	}
	bcb.SetDirty(false)
	bcb.Latch.ReleaseRead()

	if err := p.log.Flush(flushTo, true); err != nil {
		return err
	}

	vol, ok := p.registry.Volume(bcb.PageID.Volume)
	if !ok {
		return emberr.New(emberr.KindBadVolume, "volume %d not mounted", bcb.PageID.Volume)
	}
	stampChecksum(copyBuf)
	if err := vol.WritePage(bcb.PageID.Page, copyBuf); err != nil {
		return err
	}

	bcb.clearOldRecLSN()
	bcb.clearRecLSN()
	p.clearDependencies(bcb)
	return nil
}
