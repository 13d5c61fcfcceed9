// Package subtable implements the SubTable collaborator spec §2 and
// §6 describe: a named handle onto one buffer-pool-
// resident Page, plus the per-subtable lock table the Decentralized
// lock manager discipline needs.
//
// Grounded on the teacher's GetSubTable_ lazy-open-and-cache pattern
// from txn_context_occ.cpp, translated from a txn-owned cache into a
// bufferpool-owned one (internal/bufferpool already does the
// caching); SubTable itself is the thin per-call wrapper the original
// source's SubTable class plays around a BwTree page.
package subtable

import (
	"arcanedb/internal/bufferpool"
	"arcanedb/internal/locktable"
	"arcanedb/internal/options"
	"arcanedb/internal/page"
	"arcanedb/internal/property"
	"arcanedb/internal/tsutil"
)

// SubTable is a view of one buffer-pool-resident page, identified by
// its subtable key. It holds no schema; each call takes it in opts.
type SubTable struct {
	key       string
	pg        *page.Page
	lockTable *locktable.LockTable
}

// Open returns the SubTable for key, creating its backing page (and,
// for Decentralized locking, its lock table) in pool on first
// reference. Every Open call for the same key against the same pool
// -- whatever Context makes it -- shares the same *page.Page and the
// same *locktable.LockTable, so Decentralized locking actually
// serializes concurrent transactions instead of handing each of them
// a private, uncontended lock table.
func Open(key string, pool *bufferpool.Pool) *SubTable {
	return &SubTable{
		key:       key,
		pg:        pool.GetOrCreate(key),
		lockTable: pool.GetOrCreateLockTable(key),
	}
}

// Key returns the subtable's identifying key.
func (s *SubTable) Key() string { return s.key }

// GetLockTable returns this subtable's lock table, shared by every
// Context that opens this subtable against the same pool, used by
// the Decentralized lock manager discipline (spec §4.2).
func (s *SubTable) GetLockTable() *locktable.LockTable { return s.lockTable }

// SetRow installs row under ts.
func (s *SubTable) SetRow(row property.Row, ts tsutil.Ts, opts options.Options) error {
	return s.pg.SetRow(row, ts, opts)
}

// DeleteRow installs a delete marker for sk under ts.
func (s *SubTable) DeleteRow(sk property.SortKey, ts tsutil.Ts, opts options.Options) error {
	return s.pg.DeleteRow(sk, ts, opts)
}

// GetRow returns the version of sk visible at readTs under opts.
func (s *SubTable) GetRow(sk property.SortKey, readTs tsutil.Ts, opts options.Options) (property.Row, tsutil.Ts, error) {
	return s.pg.GetRow(sk, readTs, opts)
}

// SetTs stamps the intent for sk owned by opts.OwnerTs with newTs.
func (s *SubTable) SetTs(sk property.SortKey, newTs tsutil.Ts, opts options.Options) error {
	return s.pg.SetTs(sk, newTs, opts)
}
