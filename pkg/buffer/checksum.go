package buffer

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cuemby/ember/pkg/emberr"
)

const checksumTrailerLen = 4

// stampChecksum overwrites data's trailing 4 bytes with the CRC32 of
// everything before them. Called on every write the pool performs so
// fix's post-read verification has something to check against — the
// volumes.Volume contract stores whatever bytes it's given, so the
// checksum framing is the buffer pool's own, not the storage layer's.
func stampChecksum(data []byte) {
	if len(data) < checksumTrailerLen {
		return
	}
	body := data[:len(data)-checksumTrailerLen]
	sum := crc32.ChecksumIEEE(body)
	binary.BigEndian.PutUint32(data[len(data)-checksumTrailerLen:], sum)
}

// verifyChecksum validates a page read back from storage. A page that is
// still all-zero (never written, a "virgin" page) is accepted unverified.
func verifyChecksum(data []byte) error {
	if len(data) < checksumTrailerLen || isZero(data) {
		return nil
	}
	body := data[:len(data)-checksumTrailerLen]
	want := binary.BigEndian.Uint32(data[len(data)-checksumTrailerLen:])
	got := crc32.ChecksumIEEE(body)
	if got != want {
		return emberr.New(emberr.KindBadChecksum, "page checksum mismatch: got %x, want %x", got, want)
	}
	return nil
}

func isZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
