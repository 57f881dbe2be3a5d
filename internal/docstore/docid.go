package docstore

// DocID is a 64-bit document id: a 16-bit shard prefix in the high bits
// plus a 48-bit locally monotonic id in the low bits (§3 invariants).
// Document ids are monotonically assigned per shard and never reused
// while the index is open.
type DocID uint64

const localIDBits = 48
const localIDMask = (uint64(1) << localIDBits) - 1

// MakeDocID combines a shard prefix and a local id into one DocID.
func MakeDocID(shard uint16, local uint64) DocID {
	return DocID((uint64(shard) << localIDBits) | (local & localIDMask))
}

// Shard returns the 16-bit shard prefix.
func (d DocID) Shard() uint16 { return uint16(uint64(d) >> localIDBits) }

// Local returns the 48-bit local id.
func (d DocID) Local() uint64 { return uint64(d) & localIDMask }
