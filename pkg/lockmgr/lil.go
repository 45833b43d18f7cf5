package lockmgr

import (
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/wal"
)

const lilPollInterval = 2 * time.Millisecond

// LILMode is one of the four fast-path intent modes lock_lil.h defines:
// LIL only ever grants IS/IX/S/X on a volume or store as a whole, never
// the full OKVL composite.
type LILMode uint8

const (
	LILIS LILMode = iota
	LILIX
	LILS
	LILX
)

// lilCompat[held][requested] is the same multi-granularity compatibility
// restricted to the four LIL modes.
var lilCompat = [4][4]bool{
	LILIS: {LILIS: true, LILIX: true, LILS: true, LILX: false},
	LILIX: {LILIS: true, LILIX: true, LILS: false, LILX: false},
	LILS:  {LILIS: true, LILIX: false, LILS: true, LILX: false},
	LILX:  {LILIS: false, LILIX: false, LILS: false, LILX: false},
}

const lilWaitTimeout = 50 * time.Millisecond

// LILTable is a super-fast, non-starving lock table for one volume or
// store: just spinlock-protected counters and a bounded sleep-poll,
// mirroring lil_global_table_base's "this class only uses spinlocks,
// counters and sleeps" design note — no condition-variable machinery.
type LILTable struct {
	mu sync.Mutex

	isCount, ixCount, sCount int
	xTaken                   bool
	waitingS, waitingX       int
	releaseVersion           uint64
	xLockTag                 wal.LSN
}

func NewLILTable() *LILTable {
	return &LILTable{}
}

func (t *LILTable) granted(mode LILMode) bool {
	switch mode {
	case LILIS:
		return !t.xTaken
	case LILIX:
		return !t.xTaken && t.sCount == 0
	case LILS:
		return !t.xTaken && t.ixCount == 0
	case LILX:
		return !t.xTaken && t.isCount == 0 && t.ixCount == 0 && t.sCount == 0
	}
	return false
}

func (t *LILTable) take(mode LILMode) {
	switch mode {
	case LILIS:
		t.isCount++
	case LILIX:
		t.ixCount++
	case LILS:
		t.sCount++
	case LILX:
		t.xTaken = true
	}
}

// Request acquires mode, blocking up to lilWaitTimeout before returning a
// lock-timeout error. Returns the table's observed X-lock commit tag for
// safe SX-ELR.
func (t *LILTable) Request(mode LILMode) (wal.LSN, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.granted(mode) {
		t.take(mode)
		return t.xLockTag, nil
	}

	if mode == LILS {
		t.waitingS++
		defer func() { t.waitingS-- }()
	} else if mode == LILX {
		t.waitingX++
		defer func() { t.waitingX-- }()
	}

	deadline := time.Now().Add(lilWaitTimeout)
	for !t.granted(mode) {
		if time.Now().After(deadline) {
			return wal.Null, emberr.New(emberr.KindLockTimeout, "LIL timeout waiting for %v", mode)
		}
		t.mu.Unlock()
		time.Sleep(lilPollInterval)
		t.mu.Lock()
	}
	t.take(mode)
	return t.xLockTag, nil
}

// Release decrements mode's counter (blocked Request calls see the
// change on their next poll; nothing is signalled), recording
// commitLSN as the table's new X-lock tag when releasing an exclusive
// hold (used by safe SX early lock release).
func (t *LILTable) Release(mode LILMode, commitLSN wal.LSN) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch mode {
	case LILIS:
		if t.isCount > 0 {
			t.isCount--
		}
	case LILIX:
		if t.ixCount > 0 {
			t.ixCount--
		}
	case LILS:
		if t.sCount > 0 {
			t.sCount--
		}
	case LILX:
		t.xTaken = false
		if !commitLSN.IsNull() && (t.xLockTag.IsNull() || t.xLockTag.Less(commitLSN)) {
			t.xLockTag = commitLSN
		}
	}
	t.releaseVersion++
}

// VolTable is one volume's LIL table plus its per-store sub-tables,
// mirroring lil_global_vol_table. Store tables are created lazily since
// most volumes touch only a handful of their stores in any given run.
type VolTable struct {
	Volume *LILTable

	mu     sync.Mutex
	stores map[uint32]*LILTable
}

func NewVolTable() *VolTable {
	return &VolTable{Volume: NewLILTable(), stores: make(map[uint32]*LILTable)}
}

func (v *VolTable) Store(storeID uint32) *LILTable {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.stores[storeID]
	if !ok {
		t = NewLILTable()
		v.stores[storeID] = t
	}
	return t
}
