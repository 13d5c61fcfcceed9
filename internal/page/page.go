package page

import (
	"sync/atomic"

	"go.uber.org/zap"

	"arcanedb/internal/config"
	"arcanedb/internal/options"
	"arcanedb/internal/property"
	"arcanedb/internal/status"
	"arcanedb/internal/tsutil"
)

// Page is the versioned delta-chain page of spec §4.1. Many writers
// and readers may operate on it concurrently; head installation is a
// single atomic pointer swing and readers never block on writers.
type Page struct {
	head atomic.Pointer[delta]

	// length is an approximate count of non-Base nodes since the
	// last compaction, used only to decide when to trigger
	// compaction; it need not be exact under concurrent writes.
	length atomic.Int64

	compacting atomic.Bool

	cfg    *config.Config
	logger *zap.Logger
}

// New creates an empty page.
func New(cfg *config.Config, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{cfg: cfg, logger: logger}
}

// SetRow installs an Insert/Update delta at the head of the chain.
// It never fails once the caller has the right to write (conflict
// checking belongs to the transaction/lock layer) except under the
// Inlined lock discipline, where CheckIntentLocked asks this call to
// detect a conflicting in-flight intent for the same sort key.
func (p *Page) SetRow(row property.Row, ts tsutil.Ts, opts options.Options) error {
	sk, err := row.SortKey(opts.Schema)
	if err != nil {
		return status.Wrap(status.Internal, err, "page: extracting sort key")
	}
	kind := kindInsert
	if p.findVisibleHead(sk, opts) != nil {
		kind = kindUpdate
	}
	d := &delta{kind: kind, sortKey: sk, row: row}
	d.storeTs(ts)
	return p.installAndMaybeCompact(d, sk, ts, opts)
}

// DeleteRow installs a Delete delta, same compaction and
// conflict-checking rules as SetRow.
func (p *Page) DeleteRow(sk property.SortKey, ts tsutil.Ts, opts options.Options) error {
	d := newDeleteDelta(sk, ts)
	return p.installAndMaybeCompact(d, sk, ts, opts)
}

func (p *Page) installAndMaybeCompact(d *delta, sk property.SortKey, ts tsutil.Ts, opts options.Options) error {
	if opts.CheckIntentLocked {
		if conflict := p.hasConflictingIntent(sk, ts); conflict {
			return status.New(status.Conflict, "page: sort key already carries another transaction's intent")
		}
	}
	p.installHead(d)
	p.length.Add(1)
	if !opts.DisableCompaction && int(p.length.Load()) > p.cfg.BwTreeDeltaChainLength {
		p.maybeCompact(opts)
	}
	return nil
}

// hasConflictingIntent reports whether the newest entry for sk is a
// locked intent owned by a read timestamp other than newTs's raw
// value, the Inlined lock manager's only conflict signal (spec §4.2).
func (p *Page) hasConflictingIntent(sk property.SortKey, newTs tsutil.Ts) bool {
	for d := p.head.Load(); d != nil; d = d.next.Load() {
		if d.kind == kindBase {
			break
		}
		if !d.sortKey.Equal(sk) {
			continue
		}
		existing := d.loadTs()
		if tsutil.IsLocked(existing) && tsutil.Raw(existing) != tsutil.Raw(newTs) {
			return true
		}
		return false
	}
	return false
}

// installHead atomically swings the chain head to point at d, CAS
// looping until it wins. This is the only mutation of the chain
// structure that ordinary writers perform; compaction is the other.
func (p *Page) installHead(d *delta) {
	for {
		old := p.head.Load()
		d.next.Store(old)
		if p.head.CompareAndSwap(old, d) {
			return
		}
	}
}

// GetRow walks the chain from newest to oldest and returns the first
// entry for sk that is visible at readTs under opts, per spec §4.1's
// visibility rule (tsutil.Visible). A Delete resolves to NotFound, as
// does having no matching entry at all.
func (p *Page) GetRow(sk property.SortKey, readTs tsutil.Ts, opts options.Options) (property.Row, tsutil.Ts, error) {
	for d := p.head.Load(); d != nil; d = d.next.Load() {
		if d.kind == kindBase {
			if bv, ok := d.base[string(sk)]; ok && bv.ts <= readTs {
				if bv.deleted {
					return nil, tsutil.InvalidTs, status.ErrNotFound
				}
				return bv.row, bv.ts, nil
			}
			break
		}
		if !d.sortKey.Equal(sk) {
			continue
		}
		ts := d.loadTs()
		if !tsutil.Visible(ts, readTs, opts.OwnerTs, opts.IgnoreLock) {
			// Aborted, locked by someone else, or simply too new:
			// in every case spec §4.1 says keep walking older
			// versions of this sort key.
			continue
		}
		if d.kind == kindDelete {
			return nil, tsutil.InvalidTs, status.ErrNotFound
		}
		return d.row, tsutil.Raw(ts), nil
	}
	return nil, tsutil.InvalidTs, status.ErrNotFound
}

// findVisibleHead returns the newest non-aborted entry for sk, used
// only to decide Insert vs Update labeling; it does not affect
// correctness since both kinds are treated identically by GetRow.
func (p *Page) findVisibleHead(sk property.SortKey, opts options.Options) *delta {
	for d := p.head.Load(); d != nil; d = d.next.Load() {
		if d.kind == kindBase {
			if bv, ok := d.base[string(sk)]; ok && !bv.deleted {
				return d
			}
			return nil
		}
		if d.sortKey.Equal(sk) && !tsutil.IsAborted(d.loadTs()) {
			return d
		}
	}
	return nil
}

// SetTs finds the entry currently carrying the locked intent for sk
// owned by opts.OwnerTs and rewrites its timestamp to newTs (a real
// commit timestamp, or tsutil.AbortedTxnTs). This is how a
// transaction stamps commit/abort onto intents it already installed.
func (p *Page) SetTs(sk property.SortKey, newTs tsutil.Ts, opts options.Options) error {
	for d := p.head.Load(); d != nil; d = d.next.Load() {
		if d.kind == kindBase {
			break
		}
		if !d.sortKey.Equal(sk) {
			continue
		}
		ts := d.loadTs()
		if tsutil.IsLocked(ts) && tsutil.Raw(ts) == opts.OwnerTs {
			d.storeTs(newTs)
			return nil
		}
	}
	return status.New(status.Internal, "page: no locked intent found to stamp")
}

// TEST_GetDeltaLength returns the observable chain length, used by
// tests to check the compaction bound (spec §4.1).
func (p *Page) TEST_GetDeltaLength() int {
	n := 0
	for d := p.head.Load(); d != nil; d = d.next.Load() {
		n++
		if d.kind == kindBase {
			break
		}
	}
	return n
}
