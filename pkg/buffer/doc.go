// Package buffer implements the buffer pool (C6): a page cache addressed
// by volumes.PageID, fix/unfix latching built on pkg/latch (C3), clock
// replacement, a per-volume page cleaner, write-order dependency
// tracking, and force operations, all coordinated with pkg/wal (C4) so a
// dirty page is never written before its covering log record is durable
// (the WAL rule).
//
// Each buffer control block (BCB) owns one fixed-size frame and is
// pinned/latched independently; the pool itself holds only a short-lived
// map lock while looking up or evicting a frame, mirroring bf.cpp's
// separation between the (briefly latched) hash table and the
// (independently latched) per-page BCB.
package buffer
