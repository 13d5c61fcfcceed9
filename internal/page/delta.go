// Package page implements the versioned delta-chain page of spec
// §4.1: an in-memory MVCC structure supporting point inserts,
// updates, deletes, snapshot reads and concurrent compaction.
//
// Grounded on VersionedBwTreePage from the original source
// (test/btree/versioned_bwtree_page_test.cpp exercises exactly the
// operations implemented here) and, for the lock-free head swing, on
// the same atomic-pointer style the WAL ring uses for its control
// word.
package page

import (
	"sync/atomic"

	"arcanedb/internal/property"
	"arcanedb/internal/tsutil"
)

type deltaKind int

const (
	kindInsert deltaKind = iota
	kindUpdate
	kindDelete
	kindBase
)

// baseVersion is one sort key's consolidated entry inside a Base
// delta, the replay result of folding every older delta for that key.
type baseVersion struct {
	row     property.Row
	ts      tsutil.Ts
	deleted bool
}

// delta is one node of the newest-first delta chain. Insert/Update
// carry a row, Delete carries only the sort key, and Base carries a
// consolidated map built by compaction. Exactly one of (row-bearing
// fields) or (base map) is populated depending on kind.
type delta struct {
	kind    deltaKind
	sortKey property.SortKey
	row     property.Row // nil for Delete and Base
	ts      atomic.Uint64 // tsutil.Ts; mutated in place by SetTs

	next atomic.Pointer[delta]

	base map[string]baseVersion // only for kindBase
}

func (d *delta) loadTs() tsutil.Ts { return tsutil.Ts(d.ts.Load()) }
func (d *delta) storeTs(ts tsutil.Ts) { d.ts.Store(uint64(ts)) }

func newInsertDelta(sk property.SortKey, row property.Row, ts tsutil.Ts) *delta {
	d := &delta{kind: kindInsert, sortKey: sk, row: row}
	d.storeTs(ts)
	return d
}

func newUpdateDelta(sk property.SortKey, row property.Row, ts tsutil.Ts) *delta {
	d := &delta{kind: kindUpdate, sortKey: sk, row: row}
	d.storeTs(ts)
	return d
}

func newDeleteDelta(sk property.SortKey, ts tsutil.Ts) *delta {
	d := &delta{kind: kindDelete, sortKey: sk}
	d.storeTs(ts)
	return d
}

func newBaseDelta(entries map[string]baseVersion) *delta {
	return &delta{kind: kindBase, base: entries}
}
