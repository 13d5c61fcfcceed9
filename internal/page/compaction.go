package page

import (
	"arcanedb/internal/options"
	"arcanedb/internal/property"
	"arcanedb/internal/tsutil"
)

// maxCompactionAttempts bounds the CAS-retry loop so a pathologically
// busy page can't spin the compactor forever; giving up silently is
// fine per spec §4.1 ("compaction failures are internal and must not
// surface to callers") since the next write that crosses the
// threshold will simply try again.
const maxCompactionAttempts = 8

// maybeCompact kicks off at most one compaction for this page at a
// time, coordinated by the compacting flag (the "single compactor per
// page" discipline spec §4.1 allows as an alternative to cooperative
// CAS). It runs asynchronously so the triggering writer is never
// blocked by it.
func (p *Page) maybeCompact(opts options.Options) {
	if !p.compacting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.compacting.Store(false)
		p.runCompaction()
	}()
}

// runCompaction reads the chain head, folds every resolved entry into
// a sort-key-keyed Base map, and CAS-swaps the head to a chain
// consisting of a freshly cloned copy of every still-pending (locked)
// entry on top of the new Base. Cloning rather than mutating the live
// nodes means a failed CAS (because a concurrent writer advanced the
// head) leaves the real chain completely untouched, so it is always
// safe to simply retry from a fresh snapshot.
func (p *Page) runCompaction() {
	for attempt := 0; attempt < maxCompactionAttempts; attempt++ {
		oldHead := p.head.Load()
		if oldHead == nil {
			return
		}
		pending, foldable, tailBase := collectChain(oldHead)
		if len(pending)+len(foldable) <= p.cfg.BwTreeDeltaChainLength && tailBase == nil {
			// Nothing to gain yet; another writer's concurrent
			// installs already pushed length back under the bound.
			return
		}
		baseMap := foldIntoBase(foldable, tailBase)
		newHead := newBaseDelta(baseMap)
		for i := len(pending) - 1; i >= 0; i-- {
			clone := cloneDelta(pending[i])
			clone.next.Store(newHead)
			newHead = clone
		}
		if p.head.CompareAndSwap(oldHead, newHead) {
			p.length.Store(int64(len(pending)))
			return
		}
	}
	p.logger.Debug("page: compaction gave up after max attempts, will retry on next write")
}

// collectChain walks the chain from head, splitting it into still-
// locked ("pending") deltas, resolved ("foldable") deltas, and the
// trailing Base map if present. Both slices are in newest-first order.
func collectChain(head *delta) (pending, foldable []*delta, tailBase map[string]baseVersion) {
	for d := head; d != nil; d = d.next.Load() {
		if d.kind == kindBase {
			tailBase = d.base
			break
		}
		if tsutil.IsLocked(d.loadTs()) {
			pending = append(pending, d)
			continue
		}
		foldable = append(foldable, d)
	}
	return pending, foldable, tailBase
}

// foldIntoBase replays foldable (newest-first, dropping aborted
// entries) into a sort-key-keyed map and merges in whatever the
// previous Base already knew about keys untouched since.
func foldIntoBase(foldable []*delta, tailBase map[string]baseVersion) map[string]baseVersion {
	out := make(map[string]baseVersion, len(foldable)+len(tailBase))
	for _, d := range foldable {
		ts := d.loadTs()
		if tsutil.IsAborted(ts) {
			continue
		}
		key := string(d.sortKey)
		if _, ok := out[key]; ok {
			// A newer delta for this key already won; ties break in
			// favor of the delta installed later, i.e. the one closer
			// to the head, which is the one we saw first walking
			// newest-first.
			continue
		}
		out[key] = baseVersion{
			row:     d.row,
			ts:      ts,
			deleted: d.kind == kindDelete,
		}
	}
	for key, bv := range tailBase {
		if _, ok := out[key]; !ok {
			out[key] = bv
		}
	}
	return out
}

func cloneDelta(d *delta) *delta {
	clone := &delta{kind: d.kind, sortKey: d.sortKey, row: copyRow(d.row)}
	clone.storeTs(d.loadTs())
	return clone
}

func copyRow(r property.Row) property.Row {
	if r == nil {
		return nil
	}
	out := make(property.Row, len(r))
	copy(out, r)
	return out
}
