package buffer

import (
	"testing"

	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/stretchr/testify/require"
)

func TestForceStoreOnlyTouchesMatchingStore(t *testing.T) {
	pool, reg, vol := newTestPool(t, 4)

	idStore1 := volumes.PageID{Volume: vol, Store: 1, Page: 1}
	idStore2 := volumes.PageID{Volume: vol, Store: 2, Page: 1}

	b1, err := pool.Fix(idStore1, latch.Writer, true)
	require.NoError(t, err)
	b1.Frame[0] = 0x1
	pool.Unfix(b1, latch.Writer, true, false)

	b2, err := pool.Fix(idStore2, latch.Writer, true)
	require.NoError(t, err)
	b2.Frame[0] = 0x2
	pool.Unfix(b2, latch.Writer, true, false)

	require.NoError(t, pool.ForceStore(vol, 1))
	require.Equal(t, 1, pool.DirtyPages())

	v, ok := reg.Volume(vol)
	require.True(t, ok)
	data, err := v.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, byte(0x1), data[0])
}

func TestForceVolumeClearsAllDirtyPages(t *testing.T) {
	pool, _, vol := newTestPool(t, 4)

	for i := uint32(1); i <= 3; i++ {
		id := volumes.PageID{Volume: vol, Store: 1, Page: i}
		b, err := pool.Fix(id, latch.Writer, true)
		require.NoError(t, err)
		pool.Unfix(b, latch.Writer, true, false)
	}
	require.Equal(t, 3, pool.DirtyPages())

	require.NoError(t, pool.ForceVolume(vol))
	require.Equal(t, 0, pool.DirtyPages())
}

func TestForceAllIsNoOpWhenNothingDirty(t *testing.T) {
	pool, _, _ := newTestPool(t, 4)
	require.NoError(t, pool.ForceAll())
	require.Equal(t, 0, pool.DirtyPages())
}
