// Package wal implements the log manager (C4): an append-only write-ahead
// log split into fixed-size partitions, with LSN assignment, background
// flush, record fetch, CPSN compensation in place, partition scavenging,
// and checkpoint space reservation accounting.
//
// A partition is a file named log.<number> under Config.Dir. Insert
// reserves space and assigns an LSN under Manager's write mutex (the "one
// writer at a time" serialization point, mirroring the upstream
// state-snapshot-plus-writeMu shape), then writes the record's bytes to
// that reserved offset — buffered by the OS page cache, not yet durable.
// Flush fsyncs the partition up to a target LSN. Insert never blocks on
// fsync; only Flush does, and only when a caller asks for durability.
//
//	partition 1: [chkpt_begin][rec][rec]...[rec][skip]
//	partition 2: [rec][rec]...
//
// Numbering starts at 1, not 0: LSN{0,0} is the reserved Null sentinel, and
// a partition 0 would hand its first record that same value.
//
// Every record's trailing lsn_check equals its own LSN, letting recovery
// detect a torn write at the tail of the log.
package wal
