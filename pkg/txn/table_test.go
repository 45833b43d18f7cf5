package txn

import (
	"testing"

	"github.com/cuemby/ember/pkg/buffer"
	"github.com/cuemby/ember/pkg/econfig"
	"github.com/cuemby/ember/pkg/latch"
	"github.com/cuemby/ember/pkg/lockmgr"
	"github.com/cuemby/ember/pkg/volumes"
	"github.com/cuemby/ember/pkg/wal"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()

	log, err := wal.New(wal.Config{Dir: t.TempDir(), PartitionSize: wal.DefaultPartitionSize, ChkptReservationBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	reg, err := volumes.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	_, err = reg.Mount(volumes.DeviceInfo{ID: 1, Path: "main", PageSize: 64, NumPages: 1024})
	require.NoError(t, err)

	cfg := econfig.Default()
	cfg.LockTableSize = 17
	lm := lockmgr.New(cfg)
	bufPool := buffer.New(cfg, log, reg)

	return NewTable(cfg, log, lm, bufPool)
}

func TestBeginAssignsDistinctTidsAndAttaches(t *testing.T) {
	table := newTestTable(t)
	a := table.Begin()
	b := table.Begin()
	require.NotEqual(t, a.Tid, b.Tid)
	require.Equal(t, StateActive, a.State())
	require.Equal(t, 2, table.Len())
	a.Detach()
	b.Detach()
}

func TestCommitTransitionsToEndedAndReleasesLocks(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()

	id := lockmgr.LockID{StoreID: 1, KeyHash: 7}
	_, err := table.lockmgr.RequestLock(0, x.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)

	next, err := x.Commit()
	require.NoError(t, err)
	require.Nil(t, next)
	require.Equal(t, StateEnded, x.State())
	require.Equal(t, 0, table.Len())

	y := table.Begin()
	_, err = table.lockmgr.RequestLock(0, y.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)
	y.Detach()
}

func TestCommitTwiceFailsOnSecondCall(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	_, err := x.Commit()
	require.NoError(t, err)

	_, err = x.Commit()
	require.Error(t, err)
}

func TestChainedCommitInheritsReadWatermark(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	x.Chained = true

	next, err := x.Commit()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.False(t, next.LockInfo.ReadWatermark.IsNull())
	next.Detach()
}

func TestAbortRollsBackUndoRecordsAndReleasesLocks(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()

	id := lockmgr.LockID{StoreID: 1, KeyHash: 3}
	_, err := table.lockmgr.RequestLock(0, x.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)

	rec := x.GetLogBuf(32, wal.CategoryUndo)
	rec.Payload = []byte("set x = 1")
	_, err = x.GiveLogBuf(rec, nil, nil)
	require.NoError(t, err)

	var undone []string
	err = x.Abort(func(r *wal.Record) error {
		undone = append(undone, string(r.Payload))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"set x = 1"}, undone)
	require.Equal(t, StateEnded, x.State())

	y := table.Begin()
	_, err = table.lockmgr.RequestLock(0, y.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)
	y.Detach()
}

func TestAnchorCompensationRetroPatchesRecord(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	defer x.Detach()

	anchor := x.Anchor()

	rec := x.GetLogBuf(32, wal.CategoryUndo)
	rec.Payload = []byte("step")
	lsn, err := x.GiveLogBuf(rec, nil, nil)
	require.NoError(t, err)

	require.NoError(t, x.ReleaseAnchor(true))

	got, err := table.log.Fetch(lsn)
	require.NoError(t, err)
	require.NotZero(t, got.Category&wal.CategoryCPSN)
	require.Equal(t, anchor, got.XidPrevLSN)
}

func TestSnapshotReportsLiveTransactions(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	defer x.Detach()

	rec := x.GetLogBuf(32, wal.CategoryRedo)
	_, err := x.GiveLogBuf(rec, nil, nil)
	require.NoError(t, err)

	snaps := table.Snapshot()
	require.Len(t, snaps, 1)
	require.Equal(t, uint64(x.Tid), snaps[0].Tid)
	require.False(t, snaps[0].FirstLSN.IsNull())
}

func TestPoisonOlderThanMarksNonblocking(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	defer x.Detach()

	rec := x.GetLogBuf(32, wal.CategoryRedo)
	_, err := x.GiveLogBuf(rec, nil, nil)
	require.NoError(t, err)

	cutoff := wal.LSN{Partition: ^uint32(0), Offset: ^uint32(0)}
	n := table.PoisonOlderThan(cutoff)
	require.Equal(t, 1, n)
	require.True(t, x.LockInfo.Nonblocking)
}

// TestReaderFlushesThroughEarlyReleasedCommitLSN is spec.md §8 scenario 4:
// T1 writes P under an X lock, commits under the default elr_sx policy
// (releasing the X lock as soon as xct_end is written, before its own
// flush completes), and T2 then acquires a lock on P before T1's commit
// record is durable. T2 must observe T1's commit LSN as its own
// ReadWatermark, and T2's Commit must flush through it.
func TestReaderFlushesThroughEarlyReleasedCommitLSN(t *testing.T) {
	table := newTestTable(t)
	require.Equal(t, econfig.ELRSX, table.cfg.ELRMode.Normalize())

	id := lockmgr.LockID{StoreID: 1, KeyHash: 13}

	t1 := table.Begin()
	_, err := table.lockmgr.RequestLock(0, t1.LockInfo, id, lockmgr.ModeX, lockmgr.DurationCommit)
	require.NoError(t, err)
	_, err = t1.Commit()
	require.NoError(t, err)

	t2 := table.Begin()
	_, err = table.lockmgr.RequestLock(0, t2.LockInfo, id, lockmgr.ModeS, lockmgr.DurationCommit)
	require.NoError(t, err)
	require.False(t, t2.LockInfo.ReadWatermark.IsNull())

	_, err = t2.Commit()
	require.NoError(t, err)
}

func TestRunSSXAdvancesPageLSNWithoutTouchingXctChain(t *testing.T) {
	table := newTestTable(t)
	x := table.Begin()
	defer x.Detach()

	id := volumes.PageID{Volume: volumes.VolumeID(1), Store: 1, Page: 1}
	bcb, err := table.buf.Fix(id, latch.Writer, true)
	require.NoError(t, err)

	lsn, err := table.RunSSX(32, bcb, nil, []byte("ssx"))
	require.NoError(t, err)
	require.Equal(t, lsn, bcb.PageLSN())
	require.True(t, x.LastLSN().IsNull())

	table.buf.Unfix(bcb, latch.Writer, true, false)
}
