package buffer

import (
	"testing"
	"time"

	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/stretchr/testify/require"
)

func TestCleanerSweepWritesDirtyPagesAndClearsThem(t *testing.T) {
	pool, reg, vol := newTestPool(t, 4)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 1}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x5
	pool.Unfix(bcb, latch.Writer, true, false)
	require.Equal(t, 1, pool.DirtyPages())

	n, err := pool.sweepVolume(vol)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, pool.DirtyPages())

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(0x5), data[0])
}

func TestStartStopCleanerLifecycle(t *testing.T) {
	pool, reg, vol := newTestPool(t, 4)
	id := volumes.PageID{Volume: vol, Store: 1, Page: 2}

	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x9
	pool.Unfix(bcb, latch.Writer, true, false)

	pool.StartCleaner(vol, 10*time.Millisecond)
	defer pool.StopCleaner(vol)

	require.Eventually(t, func() bool {
		return pool.DirtyPages() == 0
	}, time.Second, 5*time.Millisecond)

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(2)
	require.NoError(t, err)
	require.Equal(t, byte(0x9), data[0])

	pool.StopCleaner(vol)
}

func TestMaybeKickCleanerWakesRunningCleaner(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)
	pool.cfg.DirtyThreshold = 1
	pool.StartCleaner(vol, time.Hour)
	defer pool.StopCleaner(vol)

	id := volumes.PageID{Volume: vol, Store: 1, Page: 3}
	bcb, err := pool.Fix(id, latch.Writer, true)
	require.NoError(t, err)
	pool.Unfix(bcb, latch.Writer, true, false)

	pool.maybeKickCleaner(vol)

	require.Eventually(t, func() bool {
		return pool.DirtyPages() == 0
	}, time.Second, 5*time.Millisecond)
}
