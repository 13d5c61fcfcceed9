// Package options defines the Options bag spec §6 lists as the
// recognized keys threaded through every page/subtable/txn operation.
// It is a leaf package (it only depends on property and tsutil) so
// every other package can depend on it without import cycles.
package options

import (
	"arcanedb/internal/property"
	"arcanedb/internal/tsutil"
)

// Options carries the recognized keys from spec §6: schema,
// disable_compaction, ignore_lock, owner_ts, check_intent_locked and
// buffer_pool. BufferPool is kept as an opaque interface{} here
// (concretely a *bufferpool.Pool) purely to avoid a package import
// cycle between the buffer pool (which holds Pages) and this leaf
// options type that Page operations take by value.
type Options struct {
	// Schema is the row schema operations on this call should use to
	// interpret sort keys and row payloads.
	Schema *property.Schema

	// DisableCompaction, when true, suppresses the chain-length
	// compaction trigger in SetRow/DeleteRow.
	DisableCompaction bool

	// IgnoreLock allows a read to see locked intents regardless of
	// ownership. Compaction and commit-time validation do not set it:
	// compaction walks the chain directly and validation relies on
	// OwnerTs.
	IgnoreLock bool

	// OwnerTs marks a transaction's own intents as visible during its
	// read validation: an entry locked with this read timestamp is
	// visible to its owner even though other transactions would skip
	// it.
	OwnerTs tsutil.Ts

	// CheckIntentLocked enables conflict detection during intent
	// writing under the Inlined lock manager discipline: SetRow and
	// DeleteRow return Conflict if the sort key already carries an
	// intent owned by a different transaction.
	CheckIntentLocked bool

	// BufferPool references the external page cache. No package reads
	// it: subtable.Open and the txn layer take the *bufferpool.Pool
	// directly. See the Options doc comment for why this is opaque
	// here.
	BufferPool interface{}
}
