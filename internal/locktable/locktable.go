// Package locktable implements the lock table spec §4.2 uses under
// the Centralized and Decentralized lock manager disciplines: a
// shared map from lock key ("subtable_key#sort_key") to a binary
// semaphore, so Lock can block with a timeout instead of spinning.
package locktable

import (
	"sync"
	"time"

	"arcanedb/internal/status"
	"arcanedb/internal/tsutil"
)

// LockTable grants one holder at a time per key. Centralized mode
// uses a single LockTable shared across all subtables; Decentralized
// mode gives each subtable its own instance (see subtable.GetLockTable).
type LockTable struct {
	mu      sync.Mutex
	sems    map[string]chan struct{}
	owners  map[string]tsutil.Ts
	timeout time.Duration
}

// New creates a lock table whose Lock calls give up after timeout.
func New(timeout time.Duration) *LockTable {
	return &LockTable{
		sems:    make(map[string]chan struct{}),
		owners:  make(map[string]tsutil.Ts),
		timeout: timeout,
	}
}

func (t *LockTable) semFor(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sem, ok := t.sems[key]; ok {
		return sem
	}
	sem := make(chan struct{}, 1)
	t.sems[key] = sem
	return sem
}

// Lock blocks until key is free or the configured timeout elapses. A
// timed-out acquisition maps to Conflict (the transaction layer's
// SetRow/DeleteRow then report that as Abort per spec §5's "timed-out
// transaction behaves identically to an aborted one").
func (t *LockTable) Lock(key string, ts tsutil.Ts) error {
	sem := t.semFor(key)
	select {
	case sem <- struct{}{}:
		t.mu.Lock()
		t.owners[key] = ts
		t.mu.Unlock()
		return nil
	case <-time.After(t.timeout):
		return status.New(status.Conflict, "locktable: timed out acquiring lock for "+key)
	}
}

// Unlock releases key. Safe to call even if the caller never held it.
func (t *LockTable) Unlock(key string, ts tsutil.Ts) {
	t.mu.Lock()
	owner, held := t.owners[key]
	if !held || owner != ts {
		t.mu.Unlock()
		return
	}
	delete(t.owners, key)
	t.mu.Unlock()
	sem := t.semFor(key)
	select {
	case <-sem:
	default:
	}
}
