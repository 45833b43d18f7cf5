package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/ember/pkg/emberr"
)

// skipRecordLen is the size of the reserved marker that terminates every
// partition (a zero-payload record of RecordSkip).
const skipRecordLen = headerSize + trailerSize

// partition is one fixed-size log file, named log.<number> under the log
// directory. size is the high-water mark of bytes written (the next
// insert's byte offset); maxSize bounds it.
type partition struct {
	number  uint32
	file    *os.File
	mu      sync.RWMutex
	size    int64
	maxSize int64
}

func partitionPath(dir string, number uint32) string {
	return filepath.Join(dir, fmt.Sprintf("log.%d", number))
}

func createPartition(dir string, number uint32, maxSize int64) (*partition, error) {
	f, err := os.OpenFile(partitionPath(dir, number), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, emberr.Wrap(emberr.KindBadVolume, err, "create partition %d", number)
	}
	return &partition{number: number, file: f, maxSize: maxSize}, nil
}

func openPartition(dir string, number uint32, maxSize int64) (*partition, error) {
	f, err := os.OpenFile(partitionPath(dir, number), os.O_RDWR, 0o644)
	if err != nil {
		return nil, emberr.Wrap(emberr.KindBadVolume, err, "open partition %d", number)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, emberr.Wrap(emberr.KindBadVolume, err, "stat partition %d", number)
	}
	return &partition{number: number, file: f, size: info.Size(), maxSize: maxSize}, nil
}

// remaining reports how many bytes are left before maxSize, accounting
// for the reserved skip record that must terminate the partition.
func (p *partition) remaining() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxSize - p.size - skipRecordLen
}

// reserve claims length bytes at the partition's current tail and
// advances size, returning the offset reserved. The caller writes the
// actual bytes separately via writeAt — splitting reservation from the
// write lets LSN assignment (which depends on the offset) happen before
// the record's own lsn_check trailer is encoded.
func (p *partition) reserve(length int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	offset := p.size
	p.size += length
	return offset
}

// writeAt writes data at a previously reserved offset. Concurrent writes
// to disjoint offsets are safe; os.File.WriteAt does not serialize them.
func (p *partition) writeAt(offset int64, data []byte) error {
	if _, err := p.file.WriteAt(data, offset); err != nil {
		return emberr.Wrap(emberr.KindOutOfLogSpace, err, "append to partition %d", p.number)
	}
	return nil
}

// writeSkip terminates the partition with a zero-payload skip record at
// the current tail, without advancing size (a partition may be appended
// to again only via a fresh rotation; the skip marks "nothing more here").
func (p *partition) writeSkip(lsn LSN) error {
	rec := &Record{Type: RecordSkip}
	data := rec.Encode(lsn)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.file.WriteAt(data, p.size)
	if err != nil {
		return emberr.Wrap(emberr.KindOutOfLogSpace, err, "write skip record in partition %d", p.number)
	}
	return nil
}

func (p *partition) readAt(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, err := p.file.ReadAt(buf, offset)
	if err != nil && n < length {
		return nil, emberr.Wrap(emberr.KindEndOfLog, err, "read partition %d at %d", p.number, offset)
	}
	return buf, nil
}

func (p *partition) sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.file.Sync(); err != nil {
		return emberr.Wrap(emberr.KindOutOfLogSpace, err, "fsync partition %d", p.number)
	}
	return nil
}

func (p *partition) close() error {
	return p.file.Close()
}

func (p *partition) remove(dir string) error {
	p.file.Close()
	return os.Remove(partitionPath(dir, p.number))
}
