package wal

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	elog "github.com/cuemby/ember/pkg/elog"
	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/rs/zerolog"
)

// Config holds the log manager's tunables, sourced from econfig.Config's
// LogDir/MaxOpenLog plus a partition size the config layer doesn't carry
// (the original sizes partitions by volume device geometry; we fix a
// sensible default).
type Config struct {
	Dir           string
	PartitionSize int64
	MaxOpenLog    int
	// ChkptReservationBytes is the space reserved so two maximum-sized
	// checkpoints always fit, per spec §4.6/§4.7.
	ChkptReservationBytes int64
	// OnRotate is called (outside the manager's lock) whenever a new
	// partition is opened — the checkpoint manager's wake-up hook.
	OnRotate func(newPartition uint32)
}

const DefaultPartitionSize int64 = 8 << 20 // 8 MiB, aligned writes per spec §6

// firstPartitionNumber is the number of the log's very first partition.
// Starting at 1 keeps LSN{0,0} (the Null sentinel) from ever being a real
// record's address.
const firstPartitionNumber uint32 = 1

// Manager is the log manager (C4): LSN assignment, partition rotation,
// flush, fetch, CPSN compensation, scavenging, and checkpoint reservation
// accounting.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	registry *Registry

	mu         sync.Mutex
	curr       *partition
	durableLSN LSN
	partitions map[uint32]*partition
	oldest     uint32

	reservedBytes int64
	usedBytes     int64

	flushMu sync.Mutex
	flushCv *sync.Cond
}

// New opens (or initializes) the log directory and returns a ready
// Manager, starting from a fresh partition 1 if the directory is empty.
func New(cfg Config) (*Manager, error) {
	if cfg.PartitionSize <= 0 {
		cfg.PartitionSize = DefaultPartitionSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, emberr.Wrap(emberr.KindBadVolume, err, "create log dir %s", cfg.Dir)
	}

	m := &Manager{
		cfg:        cfg,
		logger:     elog.WithComponent("wal"),
		registry:   NewRegistry(),
		partitions: make(map[uint32]*partition),
	}
	m.flushCv = sync.NewCond(&m.flushMu)

	existing, err := discoverPartitions(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		// Partition numbering starts at 1, not 0: LSN{0,0} is the reserved
		// Null sentinel, so a first partition numbered 0 would hand the
		// very first inserted record that same LSN, and every IsNull()
		// check downstream (firstLSN tracking, checkpoint snapshots, the
		// buffer pool's dirty-page recLSN) would wrongly treat it as unset.
		p, err := createPartition(cfg.Dir, firstPartitionNumber, cfg.PartitionSize)
		if err != nil {
			return nil, err
		}
		m.curr = p
		m.partitions[firstPartitionNumber] = p
		m.oldest = firstPartitionNumber
	} else {
		sort.Slice(existing, func(i, j int) bool { return existing[i] < existing[j] })
		for _, n := range existing {
			p, err := openPartition(cfg.Dir, n, cfg.PartitionSize)
			if err != nil {
				return nil, err
			}
			m.partitions[n] = p
		}
		m.oldest = existing[0]
		m.curr = m.partitions[existing[len(existing)-1]]
		m.durableLSN = LSN{Partition: m.curr.number, Offset: uint32(m.curr.size)}
	}
	metrics.LogPartitionsTotal.Set(float64(len(m.partitions)))
	return m, nil
}

// Registry exposes the record-type registry so callers can register
// codecs for their own record payloads.
func (m *Manager) Registry() *Registry { return m.registry }

// LogStats reports a point-in-time snapshot for pkg/metrics' collector.
func (m *Manager) LogStats() metrics.LogStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return metrics.LogStats{LivePartitions: len(m.partitions)}
}

func discoverPartitions(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, emberr.Wrap(emberr.KindBadVolume, err, "read log dir %s", dir)
	}
	var nums []uint32
	for _, e := range entries {
		if n, ok := parsePartitionName(e.Name()); ok {
			nums = append(nums, n)
		}
	}
	return nums, nil
}

func parsePartitionName(name string) (uint32, bool) {
	const prefix = "log."
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	var n uint32
	if _, err := fmt.Sscanf(name[len(prefix):], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// Insert assigns the record its LSN and writes it into the current
// partition's reserved region, rotating to a new partition first if it
// wouldn't fit. Never blocks on fsync.
func (m *Manager) Insert(rec *Record) (LSN, error) {
	length := int64(rec.wireLen())

	m.mu.Lock()
	if m.curr.remaining() < length {
		if err := m.rotateLocked(); err != nil {
			m.mu.Unlock()
			return Null, err
		}
	}
	part := m.curr
	offset := part.reserve(length)
	lsn := LSN{Partition: part.number, Offset: uint32(offset)}
	m.mu.Unlock()

	data := rec.Encode(lsn)
	if err := part.writeAt(offset, data); err != nil {
		return Null, err
	}
	rec.LSN = lsn

	metrics.LogInsertsTotal.Inc()
	metrics.LogBytesWritten.Add(float64(length))
	return lsn, nil
}

// rotateLocked terminates the current partition with a skip record and
// opens the next one. Caller must hold m.mu.
func (m *Manager) rotateLocked() error {
	skipLSN := LSN{Partition: m.curr.number, Offset: uint32(m.curr.size)}
	if err := m.curr.writeSkip(skipLSN); err != nil {
		return err
	}
	if err := m.curr.sync(); err != nil {
		return err
	}

	next := m.curr.number + 1
	p, err := createPartition(m.cfg.Dir, next, m.cfg.PartitionSize)
	if err != nil {
		return err
	}
	m.partitions[next] = p
	m.curr = p
	metrics.LogPartitionRotations.Inc()
	metrics.LogPartitionsTotal.Set(float64(len(m.partitions)))

	if m.cfg.OnRotate != nil {
		onRotate := m.cfg.OnRotate
		go onRotate(next)
	}
	return nil
}

// Flush fsyncs every partition with unflushed bytes up to target. If
// blocking is false, it kicks the sync off but does not wait — signalling
// readiness is the caller's job via a later blocking Flush call.
func (m *Manager) Flush(target LSN, blocking bool) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LogFlushDuration)

	m.mu.Lock()
	if !m.durableLSN.Less(target) {
		m.mu.Unlock()
		return nil
	}
	parts := make([]*partition, 0, target.Partition-m.durableLSN.Partition+1)
	for n := m.durableLSN.Partition; n <= target.Partition; n++ {
		if p, ok := m.partitions[n]; ok {
			parts = append(parts, p)
		}
	}
	m.mu.Unlock()

	if !blocking {
		go m.doFlush(parts, target)
		return nil
	}
	return m.doFlush(parts, target)
}

func (m *Manager) doFlush(parts []*partition, target LSN) error {
	for _, p := range parts {
		if err := p.sync(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if m.durableLSN.Less(target) {
		m.durableLSN = target
	}
	m.mu.Unlock()
	m.flushMu.Lock()
	m.flushCv.Broadcast()
	m.flushMu.Unlock()
	return nil
}

// DurableLSN returns the highest LSN known to be fsynced.
func (m *Manager) DurableLSN() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.durableLSN
}

// CurrentLSN returns the LSN the next Insert would be assigned, i.e. the
// current tail of the log.
func (m *Manager) CurrentLSN() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LSN{Partition: m.curr.number, Offset: uint32(m.curr.size)}
}

// Fetch reads the record at lsn. The caller owns the returned Record;
// there is no separate release step in this port (the original's
// "release() before re-entering insert" constraint existed to bound a
// fixed-size read buffer pool, which this implementation doesn't share
// across callers).
func (m *Manager) Fetch(lsn LSN) (*Record, error) {
	m.mu.Lock()
	part, ok := m.partitions[lsn.Partition]
	m.mu.Unlock()
	if !ok {
		return nil, emberr.New(emberr.KindEndOfLog, "partition %d not resident", lsn.Partition)
	}

	lenBuf, err := part.readAt(int64(lsn.Offset), 2)
	if err != nil {
		return nil, err
	}
	length := int(lenBuf[0]) | int(lenBuf[1])<<8
	if length < headerSize+trailerSize {
		return nil, emberr.New(emberr.KindEndOfLog, "EOF at %s", lsn)
	}
	full, err := part.readAt(int64(lsn.Offset), length)
	if err != nil {
		return nil, err
	}
	return DecodeRecord(full, lsn)
}

// Compensate flips an in-buffer record's category to CPSN and sets its
// undo_nxt, avoiding a stand-alone compensation record, provided
// existingLSN's partition is still open for writing (the current
// partition). Returns false if existingLSN has already rotated out.
func (m *Manager) Compensate(existingLSN LSN, undoNxt LSN) (bool, error) {
	m.mu.Lock()
	part, ok := m.partitions[existingLSN.Partition]
	samePartition := ok && part == m.curr
	m.mu.Unlock()
	if !samePartition {
		return false, nil
	}

	buf, err := m.Fetch(existingLSN)
	if err != nil {
		return false, err
	}
	buf.Category |= CategoryCPSN
	buf.XidPrevLSN = undoNxt
	data := buf.Encode(existingLSN)
	if err := part.writeAt(int64(existingLSN.Offset), data); err != nil {
		return false, err
	}
	return true, nil
}

// Scavenge removes partitions strictly older than min(minRecLSN,
// minXctLSN), never touching the current partition, and returns the count
// retired. Retiring nothing is not an error: it returns (0, nil). It fails
// only when removing a partition file fails.
func (m *Manager) Scavenge(minRecLSN, minXctLSN LSN) (int, error) {
	bound := Min(minRecLSN, minXctLSN)

	m.mu.Lock()
	var toRemove []*partition
	for n, p := range m.partitions {
		if p == m.curr {
			continue
		}
		if n < bound.Partition {
			toRemove = append(toRemove, p)
		}
	}
	m.mu.Unlock()

	if len(toRemove) == 0 {
		return 0, nil
	}
	for _, p := range toRemove {
		if err := p.remove(m.cfg.Dir); err != nil {
			metrics.LogScavengeErrors.Inc()
			return 0, emberr.Wrap(emberr.KindBadVolume, err, "scavenge partition %d", p.number)
		}
		m.mu.Lock()
		delete(m.partitions, p.number)
		m.mu.Unlock()
	}
	m.mu.Lock()
	metrics.LogPartitionsTotal.Set(float64(len(m.partitions)))
	m.mu.Unlock()
	return len(toRemove), nil
}

// ConsumeChkptReservation deducts n bytes from the checkpoint's log-space
// reservation. Fails with KindOutOfLogSpace if the reservation is
// exhausted — per spec §4.7, "exhaustion is fatal".
func (m *Manager) ConsumeChkptReservation(n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usedBytes+n > m.cfg.ChkptReservationBytes {
		return emberr.New(emberr.KindOutOfLogSpace, "checkpoint reservation exhausted (%d/%d bytes)", m.usedBytes+n, m.cfg.ChkptReservationBytes)
	}
	m.usedBytes += n
	return nil
}

// VerifyChkptReservation resets the consumed counter for the next
// checkpoint cycle when a reservation is configured. It does not compare
// the reservation against the size of any checkpoint, and it always
// returns nil.
func (m *Manager) VerifyChkptReservation() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.ChkptReservationBytes <= 0 {
		return nil
	}
	m.usedBytes = 0
	return nil
}

// Close syncs and closes every open partition.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, p := range m.partitions {
		if err := p.sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
