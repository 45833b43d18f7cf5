package lockmgr

// LockID identifies a lockable resource: a store id plus a 64-bit key
// hash, per spec.md §3 ("hash bucket key = stid + key-hash") and
// lock_s.h's lockid_t (store + hashed key, collapsed from the upstream's
// 128-bit union into a single 64-bit hash since this port has no
// w_keystr_t to hash directly — callers hash their own keys).
type LockID struct {
	StoreID uint32
	KeyHash uint64
}

const lockIDHashMult = 0x35D0B891

// Hash combines StoreID and KeyHash into the single 64-bit value used to
// select a bucket and to disambiguate entries within it, mirroring
// lockid_t::hash()'s multiplicative mixing.
func (id LockID) Hash() uint64 {
	h := uint64(id.StoreID)
	h = h*lockIDHashMult + id.KeyHash
	h = h*lockIDHashMult + (id.KeyHash >> 32)
	return h
}

// GapPartition selects which of econfig.OKVLPartitions gap-mode slots
// this LockID's gap component addresses.
func (id LockID) GapPartition(numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	return int(id.KeyHash % uint64(numPartitions))
}
