package engine

import (
	"testing"

	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/lockmgr"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := econfig.Default()
	cfg.LogDir = t.TempDir()
	cfg.BufferPoolPages = 32
	cfg.DirtyThreshold = 1
	cfg.LockTableSize = 17

	e, err := Open(cfg, t.TempDir(), []volumes.DeviceInfo{
		{ID: 1, Path: "main", PageSize: 64, NumPages: 256},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenWiresEveryComponent(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e.Log)
	require.NotNil(t, e.Buffer)
	require.NotNil(t, e.Locks)
	require.NotNil(t, e.Checkpoints)
	require.NotNil(t, e.Xcts)
}

func TestBeginCommitRoundTripThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	x := e.Begin()

	id := lockmgr.LockID{StoreID: 1, KeyHash: 99}
	_, err := e.Locks.RequestLock(0, x.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)

	_, err = x.Commit()
	require.NoError(t, err)
	require.Equal(t, 0, e.Xcts.Len())
}

func TestEngineStatsSourceMethods(t *testing.T) {
	e := newTestEngine(t)

	pageID := volumes.PageID{Volume: volumes.VolumeID(1), Store: 1, Page: 1}
	bcb, err := e.Buffer.Fix(pageID, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x7
	e.Buffer.Unfix(bcb, latch.Writer, true, true)

	require.Equal(t, 1, e.BufferPoolStats().DirtyPages)
	require.GreaterOrEqual(t, e.LogStats().LivePartitions, 1)
	require.GreaterOrEqual(t, e.LockTableStats().Queues, 0)
}

func TestCloseForcesDirtyPagesBeforeShutdown(t *testing.T) {
	cfg := econfig.Default()
	cfg.LogDir = t.TempDir()
	cfg.BufferPoolPages = 8
	cfg.DirtyThreshold = 1
	cfg.LockTableSize = 17

	e, err := Open(cfg, t.TempDir(), []volumes.DeviceInfo{
		{ID: 1, Path: "main", PageSize: 64, NumPages: 64},
	})
	require.NoError(t, err)

	pageID := volumes.PageID{Volume: volumes.VolumeID(1), Store: 1, Page: 1}
	bcb, err := e.Buffer.Fix(pageID, latch.Writer, true)
	require.NoError(t, err)
	bcb.Frame[0] = 0x9
	e.Buffer.Unfix(bcb, latch.Writer, true, true)

	require.NoError(t, e.Close())
}
