// Package bufferpool provides the minimal in-memory page cache that
// spec §6 calls the buffer pool: an external collaborator handed
// directly to subtable.Open (Options.BufferPool exists but is not
// read). The
// original source only specifies the interface; a disk-backed
// eviction policy would be future B-tree structural work, explicitly
// out of scope (spec §1), so this keeps every opened page resident.
package bufferpool

import (
	"sync"

	"github.com/tidwall/btree"

	"arcanedb/internal/config"
	"arcanedb/internal/locktable"
	"arcanedb/internal/page"
)

// Pool owns one Page per subtable key, and (spec §4.2) the one
// LockTable per subtable key the Decentralized lock manager
// discipline needs. It is the thing a Subtable asks for its backing
// Page and lock table, and the thing Options.BufferPool refers to
// (see internal/options for why that field is kept opaque there).
//
// A subtable's lock table must be shared by every Context that opens
// that subtable — Decentralized locking only serializes concurrent
// transactions if they contend on the same LockTable instance — so
// it is cached here, in the one place already responsible for owning
// one resident thing per subtable key for the life of the pool.
//
// Keyed lookups go through a btree.BTreeG the way the teacher's
// MvStore indexes its versioned keys, trading a plain map for ordered
// iteration — useful here if a caller wants to snapshot or enumerate
// subtable keys deterministically for diagnostics.
type Pool struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[poolEntry]
	cfg  *config.Config
}

type poolEntry struct {
	key       string
	page      *page.Page
	lockTable *locktable.LockTable
}

// New creates an empty buffer pool.
func New(cfg *config.Config) *Pool {
	return &Pool{
		cfg: cfg,
		tree: btree.NewBTreeG(func(a, b poolEntry) bool {
			return a.key < b.key
		}),
	}
}

// getOrCreateEntry returns the resident entry for subtableKey,
// creating an empty page and a fresh lock table on first reference.
func (p *Pool) getOrCreateEntry(subtableKey string) poolEntry {
	p.mu.RLock()
	if entry, ok := p.tree.Get(poolEntry{key: subtableKey}); ok {
		p.mu.RUnlock()
		return entry
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.tree.Get(poolEntry{key: subtableKey}); ok {
		return entry
	}
	entry := poolEntry{
		key:       subtableKey,
		page:      page.New(p.cfg, nil),
		lockTable: locktable.New(p.cfg.LockTimeout),
	}
	p.tree.Set(entry)
	return entry
}

// GetOrCreate returns the resident page for subtableKey, creating an
// empty one on first reference.
func (p *Pool) GetOrCreate(subtableKey string) *page.Page {
	return p.getOrCreateEntry(subtableKey).page
}

// GetOrCreateLockTable returns the resident LockTable for
// subtableKey, creating it on first reference. Every Context that
// opens the same subtable under the Decentralized discipline shares
// this instance, so their Lock/Unlock calls actually contend.
func (p *Pool) GetOrCreateLockTable(subtableKey string) *locktable.LockTable {
	return p.getOrCreateEntry(subtableKey).lockTable
}

// Keys returns every resident subtable key in sorted order, useful
// for diagnostics and tests.
func (p *Pool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, p.tree.Len())
	p.tree.Scan(func(entry poolEntry) bool {
		keys = append(keys, entry.key)
		return true
	})
	return keys
}
