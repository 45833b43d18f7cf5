package buffer

import (
	"sync"
	"testing"

	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, frames int) (*Pool, volumes.Registry, volumes.VolumeID) {
	t.Helper()
	dir := t.TempDir()

	logDir := t.TempDir()
	log, err := wal.New(wal.Config{Dir: logDir, PartitionSize: wal.DefaultPartitionSize, ChkptReservationBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	reg, err := volumes.NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	_, err = reg.Mount(volumes.DeviceInfo{ID: 1, Path: "main", PageSize: 64, NumPages: 1024})
	require.NoError(t, err)

	cfg := econfig.Default()
	cfg.BufferPoolPages = frames
	cfg.DirtyThreshold = frames + 1

	return New(cfg, log, reg), reg, volumes.VolumeID(1)
}

func TestFixUnfixRoundTrip(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 1}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	require.Equal(t, id, bcb.PageID)

	bcb.Frame[0] = 0xAB
	pool.Unfix(bcb, latch.Writer, true, true)
	require.Equal(t, 1, pool.DirtyPages())

	bcb2, err := pool.Fix(id, latch.Reader, false)
	require.NoError(t, err)
	require.Same(t, bcb, bcb2)
	require.Equal(t, byte(0xAB), bcb2.Frame[0])
	pool.Unfix(bcb2, latch.Reader, false, true)
}

func TestClockReplacementSkipsPinnedFrames(t *testing.T) {
	pool, _, vol := newTestPool(t, 2)

	id1 := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	id2 := volumes.PageID{Volume: vol, Store: 1, Page: 2}
	id3 := volumes.PageID{Volume: vol, Store: 1, Page: 3}

	pinned, err := pool.Fix(id1, latch.Writer, true)
	require.NoError(t, err)

	bcb2, err := pool.Fix(id2, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(bcb2, latch.Writer, false, false)

	bcb3, err := pool.Fix(id3, latch.Writer, true)
	require.NoError(t, err)
	require.Equal(t, id3, bcb3.PageID)
	require.NotSame(t, pinned, bcb3)
	pool.Unfix(bcb3, latch.Writer, false, false)

	pool.Unfix(pinned, latch.Writer, false, false)
}

func TestReplacementFailsWhenEveryFrameIsPinned(t *testing.T) {
	pool, _, vol := newTestPool(t, 2)

	id1 := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	id2 := volumes.PageID{Volume: vol, Store: 1, Page: 2}
	id3 := volumes.PageID{Volume: vol, Store: 1, Page: 3}

	b1, err := pool.Fix(id1, latch.Writer, true)
	require.NoError(t, err)
	b2, err := pool.Fix(id2, latch.Writer, true)
	require.NoError(t, err)

	_, err = pool.Fix(id3, latch.Writer, true)
	require.Error(t, err)
	require.Equal(t, emberr.KindHotPage, emberr.Of(err))

	pool.Unfix(b1, latch.Writer, false, false)
	pool.Unfix(b2, latch.Writer, false, false)
}

func TestFlushVictimWritesDirtyPageBeforeEviction(t *testing.T) {
	pool, reg, vol := newTestPool(t, 1)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 1}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x42
	pool.Unfix(bcb, latch.Writer, true, false)

	other := volumes.PageID{Volume: vol, Store: 1, Page: 2}
	b2, err := pool.Fix(other, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(b2, latch.Writer, false, false)

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(0x42), data[0])
}

func TestWriteOrderDependencyRejectsCycle(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)
	idA := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	idB := volumes.PageID{Volume: vol, Store: 1, Page: 2}

	a, err := pool.Fix(idA, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(a, latch.Writer, false, false)
	b, err := pool.Fix(idB, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(b, latch.Writer, false, false)

	require.NoError(t, pool.RegisterWriteOrderDependency(b, a))

	err = pool.RegisterWriteOrderDependency(a, b)
	require.Error(t, err)
	require.Equal(t, emberr.KindWriteOrderLoop, emberr.Of(err))

	err = pool.RegisterWriteOrderDependency(a, a)
	require.Error(t, err)
	require.Equal(t, emberr.KindWriteOrderLoop, emberr.Of(err))
}

func TestPendingDependencyBlocksCleanerNotForce(t *testing.T) {
	pool, reg, vol := newTestPool(t, 4)
	idA := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	idB := volumes.PageID{Volume: vol, Store: 1, Page: 2}

	a, err := pool.Fix(idA, latch.Writer, true)
	require.NoError(t, err)
	a.Frame[0] = 1
	pool.Unfix(a, latch.Writer, true, false)

	b, err := pool.Fix(idB, latch.Writer, true)
	require.NoError(t, err)
	b.Frame[0] = 2
	pool.Unfix(b, latch.Writer, true, false)

	require.NoError(t, pool.RegisterWriteOrderDependency(b, a))
	require.True(t, pool.hasPendingDependencies(b))

	cleaned, err := pool.cleanOne(b)
	require.NoError(t, err)
	require.False(t, cleaned)
	require.Equal(t, 2, pool.DirtyPages())

	require.NoError(t, pool.ForceAll())
	require.Equal(t, 0, pool.DirtyPages())

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(1), data[0])
}

func TestChecksumMismatchDetectedOnRead(t *testing.T) {
	pool, reg, vol := newTestPool(t, 2)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 5}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x7
	pool.Unfix(bcb, latch.Writer, true, false)
	require.NoError(t, pool.ForceAll())

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(5)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, v.WritePage(5, data))
	require.True(t, pool.Dispose(id))

	_, err = pool.Fix(id, latch.Reader, false)
	require.Error(t, err)
	require.Equal(t, emberr.KindBadChecksum, emberr.Of(err))
}

func TestMinRecLSNAndDirtyPageTable(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)
	require.True(t, pool.MinRecLSN().IsNull())
	require.Empty(t, pool.DirtyPageTable())

	id := volumes.PageID{Volume: vol, Store: 1, Page: 9}
	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(bcb, latch.Writer, true, false)

	require.False(t, pool.MinRecLSN().IsNull())
	table := pool.DirtyPageTable()
	require.Len(t, table, 1)
	require.Equal(t, id, table[0].PageID)
}

func TestForceUntilLSNOnlyForcesOlderPages(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)

	id1 := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	b1, err := pool.Fix(id1, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(b1, latch.Writer, true, false)

	cutoff := pool.MinRecLSN()

	_, err = pool.log.Insert(&wal.Record{Type: wal.RecordChkptBegin, Category: wal.CategoryLogical})
	require.NoError(t, err)

	id2 := volumes.PageID{Volume: vol, Store: 1, Page: 2}
	b2, err := pool.Fix(id2, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(b2, latch.Writer, true, false)

	require.NoError(t, pool.ForceUntilLSN(cutoff))
	require.Equal(t, 1, pool.DirtyPages())
}

func TestDisposeDiscardsUnwrittenPage(t *testing.T) {
	pool, reg, vol := newTestPool(t, 2)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 3}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x9
	pool.Unfix(bcb, latch.Writer, true, false)

	require.True(t, pool.Dispose(id))
	require.Equal(t, 0, pool.DirtyPages())

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(3)
	require.NoError(t, err)
	require.Equal(t, byte(0), data[0])
}

// TestConcurrentFixMissesOnSamePageShareOneFrame races many goroutines
// through a Fix miss on the same absent page. Without the in-transit list,
// each goroutine evicts its own victim and stomps p.index[id] with a
// different BCB, leaking every frame but the last writer's.
func TestConcurrentFixMissesOnSamePageShareOneFrame(t *testing.T) {
	pool, _, vol := newTestPool(t, 8)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 9}

	const racers = 16
	results := make([]*BCB, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			bcb, err := pool.Fix(id, latch.Reader, true)
			require.NoError(t, err)
			results[i] = bcb
			pool.Unfix(bcb, latch.Reader, false, false)
		}(i)
	}
	wg.Wait()

	for i := 1; i < racers; i++ {
		require.Same(t, results[0], results[i], "every racer should observe the same published BCB for id")
	}

	pool.framesMu.Lock()
	_, stillTransit := pool.inTransit[id]
	pool.framesMu.Unlock()
	require.False(t, stillTransit, "in-transit entry must be cleared once the page is published")
}
