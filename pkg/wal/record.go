package wal

import (
	"encoding/binary"

	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/volumes"
)

// RecordType identifies a log record's payload shape. Interpretation of
// the payload itself belongs to whatever layer above this package
// registered the type (see Registry) — the log manager only moves bytes.
type RecordType uint8

// Reserved record types referenced directly by this package and by C7/C8.
const (
	RecordSkip RecordType = iota
	RecordChkptBegin
	RecordChkptBfTab
	RecordChkptDevTab
	RecordChkptXctTab
	RecordChkptEnd
	RecordXctFreeingSpace
	RecordXctEnd
	RecordXctAbort
	RecordCompensation
	recordTypeFirstUser = 32
)

// Category is a bitmask driving UNDO/REDO classification during recovery.
type Category uint8

const (
	CategoryUndo Category = 1 << iota
	CategoryRedo
	CategoryCPSN
	CategoryLogical
	CategorySSX
	CategoryMultiPage
)

// TxID is the 64-bit transaction id carried by every non-SSX record.
type TxID uint64

// headerSize is the fixed portion of the wire format, per spec §6:
// len(2) + type(1) + category(1) + tid(8) + page_id(2+4+4) + page_tag(2) +
// xid_prev_lsn(8) + page_prev_lsn(8).
const headerSize = 2 + 1 + 1 + 8 + 2 + 4 + 4 + 2 + 8 + 8
const trailerSize = 8 // lsn_check

// Record is one log record: header fields plus an opaque payload, with a
// stamped LSN once inserted or fetched.
type Record struct {
	Type        RecordType
	Category    Category
	Tid         TxID
	PageID      volumes.PageID
	PageTag     uint16
	XidPrevLSN  LSN
	PagePrevLSN LSN
	Payload     []byte

	LSN LSN // stamped on Insert/Fetch; zero value (Null) before insertion.
}

func (r *Record) wireLen() int { return headerSize + len(r.Payload) + trailerSize }

// Encode serializes r to its on-disk wire format, stamping lsnCheck (the
// record's own LSN) into the trailer.
func (r *Record) Encode(lsnCheck LSN) []byte {
	buf := make([]byte, r.wireLen())
	binary.LittleEndian.PutUint16(buf[0:2], uint16(r.wireLen()))
	buf[2] = byte(r.Type)
	buf[3] = byte(r.Category)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.Tid))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(r.PageID.Volume))
	binary.LittleEndian.PutUint32(buf[14:18], r.PageID.Store)
	binary.LittleEndian.PutUint32(buf[18:22], r.PageID.Page)
	binary.LittleEndian.PutUint16(buf[22:24], r.PageTag)
	binary.LittleEndian.PutUint64(buf[24:32], r.XidPrevLSN.Pack())
	binary.LittleEndian.PutUint64(buf[32:40], r.PagePrevLSN.Pack())
	copy(buf[40:40+len(r.Payload)], r.Payload)
	binary.LittleEndian.PutUint64(buf[len(buf)-8:], lsnCheck.Pack())
	return buf
}

// DecodeRecord parses a wire-format record starting at buf[0]. It reads
// the length prefix to know how much of buf to consume, and validates
// that the trailing lsn_check matches expectLSN — a torn or partial write
// (e.g. at a crashed partition's tail) fails this check.
func DecodeRecord(buf []byte, expectLSN LSN) (*Record, error) {
	if len(buf) < headerSize+trailerSize {
		return nil, emberr.New(emberr.KindEndOfLog, "short read: %d bytes", len(buf))
	}
	length := int(binary.LittleEndian.Uint16(buf[0:2]))
	if length < headerSize+trailerSize || length > len(buf) {
		return nil, emberr.New(emberr.KindBadChecksum, "invalid record length %d", length)
	}
	rec := &Record{
		Type:     RecordType(buf[2]),
		Category: Category(buf[3]),
		Tid:      TxID(binary.LittleEndian.Uint64(buf[4:12])),
		PageID: volumes.PageID{
			Volume: volumes.VolumeID(binary.LittleEndian.Uint16(buf[12:14])),
			Store:  binary.LittleEndian.Uint32(buf[14:18]),
			Page:   binary.LittleEndian.Uint32(buf[18:22]),
		},
		PageTag:     binary.LittleEndian.Uint16(buf[22:24]),
		XidPrevLSN:  Unpack(binary.LittleEndian.Uint64(buf[24:32])),
		PagePrevLSN: Unpack(binary.LittleEndian.Uint64(buf[32:40])),
	}
	payloadEnd := length - trailerSize
	rec.Payload = append([]byte(nil), buf[40:payloadEnd]...)
	lsnCheck := Unpack(binary.LittleEndian.Uint64(buf[payloadEnd:length]))
	if lsnCheck != expectLSN {
		return nil, emberr.New(emberr.KindBadChecksum, "lsn_check %s != expected %s", lsnCheck, expectLSN)
	}
	rec.LSN = expectLSN
	return rec, nil
}

// IsUndoable reports whether this record's category requires rollback
// handling (UNDO records that are not themselves compensations).
func (r *Record) IsUndoable() bool {
	return r.Category&CategoryUndo != 0 && r.Category&CategoryCPSN == 0
}
