// Package emberpb varint-encodes the checkpoint manager's chkpt_bf_tab and
// chkpt_xct_tab payload tables using google.golang.org/protobuf's
// low-level protowire helpers. This is a deliberately narrow use of the
// protobuf ecosystem dependency — wire-format varint/length-prefix
// encoding for an append-only log payload, not RPC or full message
// reflection (see DESIGN.md).
package emberpb

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers within one BfTabEntry/XctTabEntry record. Kept distinct
// from everything above 0 since protowire field numbers must be >= 1.
const (
	fieldBfVolume protowire.Number = 1
	fieldBfStore  protowire.Number = 2
	fieldBfPage   protowire.Number = 3
	fieldBfRecLSN protowire.Number = 4

	fieldXctTid     protowire.Number = 1
	fieldXctState   protowire.Number = 2
	fieldXctLastLSN protowire.Number = 3
	fieldXctUndoNxt protowire.Number = 4

	fieldDevID       protowire.Number = 1
	fieldDevPath     protowire.Number = 2
	fieldDevPageSize protowire.Number = 3
	fieldDevNumPages protowire.Number = 4
)

// BfTabEntry is one row of a chkpt_bf_tab record: a dirty page's identity
// and its rec_lsn, per spec.md §4.7 step 6.
type BfTabEntry struct {
	Volume uint32
	Store  uint32
	Page   uint32
	RecLSN uint64
}

// XctTabEntry is one row of a chkpt_xct_tab record, per spec.md §4.7
// step 8.
type XctTabEntry struct {
	Tid     uint64
	State   uint32
	LastLSN uint64
	UndoNxt uint64
}

// EncodeBfTab appends a length-prefixed, varint-packed encoding of every
// entry to buf and returns the result.
func EncodeBfTab(buf []byte, entries []BfTabEntry) []byte {
	for _, e := range entries {
		rec := protowire.AppendTag(nil, fieldBfVolume, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.Volume))
		rec = protowire.AppendTag(rec, fieldBfStore, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.Store))
		rec = protowire.AppendTag(rec, fieldBfPage, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.Page))
		rec = protowire.AppendTag(rec, fieldBfRecLSN, protowire.VarintType)
		rec = protowire.AppendVarint(rec, e.RecLSN)

		buf = protowire.AppendVarint(buf, uint64(len(rec)))
		buf = append(buf, rec...)
	}
	return buf
}

// DecodeBfTab parses a buffer produced by EncodeBfTab.
func DecodeBfTab(buf []byte) ([]BfTabEntry, error) {
	var out []BfTabEntry
	for len(buf) > 0 {
		recLen, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return nil, fmt.Errorf("emberpb: malformed bf_tab length prefix")
		}
		buf = buf[n:]
		if uint64(len(buf)) < recLen {
			return nil, fmt.Errorf("emberpb: truncated bf_tab record")
		}
		rec := buf[:recLen]
		buf = buf[recLen:]

		var e BfTabEntry
		for len(rec) > 0 {
			num, typ, n := protowire.ConsumeTag(rec)
			if n < 0 {
				return nil, fmt.Errorf("emberpb: malformed bf_tab tag")
			}
			rec = rec[n:]
			v, n := protowire.ConsumeVarint(rec)
			if typ != protowire.VarintType || n < 0 {
				return nil, fmt.Errorf("emberpb: malformed bf_tab field %d", num)
			}
			rec = rec[n:]
			switch num {
			case fieldBfVolume:
				e.Volume = uint32(v)
			case fieldBfStore:
				e.Store = uint32(v)
			case fieldBfPage:
				e.Page = uint32(v)
			case fieldBfRecLSN:
				e.RecLSN = v
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// EncodeXctTab appends a length-prefixed, varint-packed encoding of every
// entry to buf and returns the result.
func EncodeXctTab(buf []byte, entries []XctTabEntry) []byte {
	for _, e := range entries {
		rec := protowire.AppendTag(nil, fieldXctTid, protowire.VarintType)
		rec = protowire.AppendVarint(rec, e.Tid)
		rec = protowire.AppendTag(rec, fieldXctState, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.State))
		rec = protowire.AppendTag(rec, fieldXctLastLSN, protowire.VarintType)
		rec = protowire.AppendVarint(rec, e.LastLSN)
		rec = protowire.AppendTag(rec, fieldXctUndoNxt, protowire.VarintType)
		rec = protowire.AppendVarint(rec, e.UndoNxt)

		buf = protowire.AppendVarint(buf, uint64(len(rec)))
		buf = append(buf, rec...)
	}
	return buf
}

// DecodeXctTab parses a buffer produced by EncodeXctTab.
func DecodeXctTab(buf []byte) ([]XctTabEntry, error) {
	var out []XctTabEntry
	for len(buf) > 0 {
		recLen, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return nil, fmt.Errorf("emberpb: malformed xct_tab length prefix")
		}
		buf = buf[n:]
		if uint64(len(buf)) < recLen {
			return nil, fmt.Errorf("emberpb: truncated xct_tab record")
		}
		rec := buf[:recLen]
		buf = buf[recLen:]

		var e XctTabEntry
		for len(rec) > 0 {
			num, typ, n := protowire.ConsumeTag(rec)
			if n < 0 {
				return nil, fmt.Errorf("emberpb: malformed xct_tab tag")
			}
			rec = rec[n:]
			v, n := protowire.ConsumeVarint(rec)
			if typ != protowire.VarintType || n < 0 {
				return nil, fmt.Errorf("emberpb: malformed xct_tab field %d", num)
			}
			rec = rec[n:]
			switch num {
			case fieldXctTid:
				e.Tid = v
			case fieldXctState:
				e.State = uint32(v)
			case fieldXctLastLSN:
				e.LastLSN = v
			case fieldXctUndoNxt:
				e.UndoNxt = v
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// DevTabEntry is one row of a chkpt_dev_tab record: a mounted device's
// durable identity, per spec.md §4.7 step 7.
type DevTabEntry struct {
	ID       uint32
	Path     string
	PageSize uint32
	NumPages uint32
}

// EncodeDevTab appends a length-prefixed, varint/length-delimited
// encoding of every entry to buf and returns the result.
func EncodeDevTab(buf []byte, entries []DevTabEntry) []byte {
	for _, e := range entries {
		rec := protowire.AppendTag(nil, fieldDevID, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.ID))
		rec = protowire.AppendTag(rec, fieldDevPath, protowire.BytesType)
		rec = protowire.AppendBytes(rec, []byte(e.Path))
		rec = protowire.AppendTag(rec, fieldDevPageSize, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.PageSize))
		rec = protowire.AppendTag(rec, fieldDevNumPages, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(e.NumPages))

		buf = protowire.AppendVarint(buf, uint64(len(rec)))
		buf = append(buf, rec...)
	}
	return buf
}

// DecodeDevTab parses a buffer produced by EncodeDevTab.
func DecodeDevTab(buf []byte) ([]DevTabEntry, error) {
	var out []DevTabEntry
	for len(buf) > 0 {
		recLen, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return nil, fmt.Errorf("emberpb: malformed dev_tab length prefix")
		}
		buf = buf[n:]
		if uint64(len(buf)) < recLen {
			return nil, fmt.Errorf("emberpb: truncated dev_tab record")
		}
		rec := buf[:recLen]
		buf = buf[recLen:]

		var e DevTabEntry
		for len(rec) > 0 {
			num, typ, n := protowire.ConsumeTag(rec)
			if n < 0 {
				return nil, fmt.Errorf("emberpb: malformed dev_tab tag")
			}
			rec = rec[n:]
			switch num {
			case fieldDevPath:
				v, n := protowire.ConsumeBytes(rec)
				if typ != protowire.BytesType || n < 0 {
					return nil, fmt.Errorf("emberpb: malformed dev_tab field %d", num)
				}
				rec = rec[n:]
				e.Path = string(v)
			default:
				v, n := protowire.ConsumeVarint(rec)
				if typ != protowire.VarintType || n < 0 {
					return nil, fmt.Errorf("emberpb: malformed dev_tab field %d", num)
				}
				rec = rec[n:]
				switch num {
				case fieldDevID:
					e.ID = uint32(v)
				case fieldDevPageSize:
					e.PageSize = uint32(v)
				case fieldDevNumPages:
					e.NumPages = uint32(v)
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}
