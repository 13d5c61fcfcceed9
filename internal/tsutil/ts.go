// Package tsutil defines the timestamp representation shared by the
// page, subtable and transaction layers.
//
// A Ts is a 64-bit logical timestamp. The top bit is stolen as a
// "locked" flag: an intent written by an in-flight transaction stores
// MarkLocked(readTs) in place of a real commit timestamp until the
// owning transaction stamps the final value with SetTs.
package tsutil

import "math"

// Ts is a 64-bit logical/commit timestamp. Larger is newer.
type Ts uint64

const (
	// InvalidTs never appears as a real read or commit timestamp.
	InvalidTs Ts = 0

	// AbortedTxnTs marks a delta entry as dead: the transaction that
	// installed it did not commit. It is distinct from the locked
	// flag so a reader can tell "aborted" from "still locked" without
	// ambiguity even though both have the top bit set.
	AbortedTxnTs Ts = Ts(math.MaxUint64)

	// lockedFlag is the top bit of the 64-bit timestamp.
	lockedFlag Ts = 1 << 63
)

// MarkLocked returns readTs with the locked flag set, the value an
// intent carries in a delta entry's timestamp slot until commit or
// abort stamps the final timestamp via SetTs.
func MarkLocked(readTs Ts) Ts {
	return readTs | lockedFlag
}

// IsLocked reports whether ts carries an uncommitted intent. Aborted
// entries are never considered locked even though AbortedTxnTs has
// the top bit set.
func IsLocked(ts Ts) bool {
	return ts != AbortedTxnTs && ts&lockedFlag != 0
}

// IsAborted reports whether ts marks a dead delta entry.
func IsAborted(ts Ts) bool {
	return ts == AbortedTxnTs
}

// Raw strips the locked flag, returning the read timestamp that owns
// an intent. Meaningless unless IsLocked(ts) is true.
func Raw(ts Ts) Ts {
	return ts &^ lockedFlag
}

// Visible reports whether ts is a candidate visible version for a
// read at readTs by the transaction identified by ownerTs (pass
// InvalidTs for a reader with no owning intent, e.g. a plain
// snapshot read). Locked entries owned by ownerTs are visible to
// their owner; locked entries owned by anyone else are not, unless
// ignoreLock is set, in which case every entry that is not aborted is
// visible.
func Visible(ts Ts, readTs Ts, ownerTs Ts, ignoreLock bool) bool {
	if IsAborted(ts) {
		return false
	}
	if IsLocked(ts) {
		if ignoreLock {
			return true
		}
		return ownerTs != InvalidTs && Raw(ts) == ownerTs
	}
	return ts <= readTs
}
