// Package arcanedb is the top-level embeddable façade of spec §2: a
// single-process, in-memory-first storage engine exposing View/Update
// closures over OCC transactions, grounded on the teacher's
// pkg/db/a_db.go Db type (View/Update wrapping Oracle+Executor+MvStore
// into one call) and on cmd/driver/main.go's usage pattern.
package arcanedb

import (
	"sync/atomic"

	"go.uber.org/zap"

	"arcanedb/internal/bufferpool"
	"arcanedb/internal/config"
	"arcanedb/internal/status"
	"arcanedb/internal/txn"
	"arcanedb/internal/wal"
)

// ErrAlreadyStopped is returned by View/Update after Close.
var ErrAlreadyStopped = status.New(status.Internal, "arcanedb: db already stopped")

// DB is a single embeddable instance of the engine.
type DB struct {
	stopped atomic.Bool

	cfg             *config.Config
	pool            *bufferpool.Pool
	ring            *wal.Ring
	manager         *txn.Manager
	lockManagerType txn.LockManagerType
	logger          *zap.Logger
}

// Options configures Open.
type Options struct {
	// Config overrides the default tunables; nil uses config.Default().
	Config *config.Config
	// WalDir, if non-empty, makes the engine durable: every
	// transaction boundary is appended to a WAL ring rooted at this
	// directory. Left empty, the engine runs purely in memory.
	WalDir string
	// LockManagerType selects the lock manager discipline (spec
	// §4.2); zero value is Centralized.
	LockManagerType txn.LockManagerType
	// Logger receives structured diagnostics from every layer; nil
	// installs a no-op logger.
	Logger *zap.Logger
}

// Open creates a DB per opts.
func Open(opts Options) (*DB, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var ring *wal.Ring
	if opts.WalDir != "" {
		file, err := wal.OpenLogDirectory(opts.WalDir)
		if err != nil {
			return nil, status.Wrap(status.IoFatal, err, "arcanedb: opening WAL directory")
		}
		ring = wal.OpenRing(file, cfg.LogSegmentCount, cfg.LogSegmentSize, cfg.LogStoreFlushInterval, logger)
	}

	pool := bufferpool.New(cfg)
	manager := txn.NewManager(cfg, pool, ring, logger)

	return &DB{
		cfg:             cfg,
		pool:            pool,
		ring:            ring,
		manager:         manager,
		lockManagerType: opts.LockManagerType,
		logger:          logger,
	}, nil
}

// View runs fn inside a read-only transaction. fn's returned error,
// if any, is simply propagated; there is nothing to commit or abort.
func (db *DB) View(fn func(ctx *txn.Context) error) error {
	if db.stopped.Load() {
		return ErrAlreadyStopped
	}
	ctx := txn.Begin(db.manager, txn.ReadOnly, db.lockManagerType)
	return fn(ctx)
}

// Update runs fn inside a read-write transaction and commits it if fn
// returns nil, aborting otherwise (including when Commit itself fails
// read validation).
func (db *DB) Update(fn func(ctx *txn.Context) error) error {
	if db.stopped.Load() {
		return ErrAlreadyStopped
	}
	ctx := txn.Begin(db.manager, txn.ReadWrite, db.lockManagerType)
	if err := fn(ctx); err != nil {
		ctx.Abort()
		return err
	}
	return ctx.Commit()
}

// PersistentLsn reports the highest WAL LSN durably flushed to disk,
// or 0 if the engine was opened without a WalDir.
func (db *DB) PersistentLsn() uint64 {
	if db.ring == nil {
		return 0
	}
	return db.ring.PersistentLsn()
}

// Close stops the background WAL flusher (if any) and closes its log
// file. Safe to call more than once.
func (db *DB) Close() error {
	if !db.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if db.ring != nil {
		return db.ring.Close()
	}
	return nil
}
