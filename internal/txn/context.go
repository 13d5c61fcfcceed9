package txn

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arcanedb/internal/bufferpool"
	"arcanedb/internal/options"
	"arcanedb/internal/property"
	"arcanedb/internal/status"
	"arcanedb/internal/subtable"
	"arcanedb/internal/tsutil"
	"arcanedb/internal/wal"
)

// TxnType distinguishes a read-only transaction, which never buffers
// writes or acquires locks, from a read-write one.
type TxnType int

const (
	ReadWrite TxnType = iota
	ReadOnly
)

type writeKey struct {
	subTableKey string
	sortKey     string
}

type writeValue struct {
	row     property.Row
	deleted bool
}

type readKey struct {
	subTableKey string
	sortKey     string
}

type readValue struct {
	ts    tsutil.Ts
	found bool
}

// Context is the OCC transaction context of spec §4.2: it buffers
// writes in memory, acquires locks as each write happens (not at
// commit time), and at commit time writes intents, grabs a commit
// timestamp, re-validates every read, then commits or aborts all of
// its intents in one pass.
type Context struct {
	id       uuid.UUID
	txnType  TxnType
	readTs   tsutil.Ts
	commitTs tsutil.Ts

	lockManagerType LockManagerType

	manager *Manager
	pool    *bufferpool.Pool
	ring    *wal.Ring
	logger  *zap.Logger

	tables   map[string]*subtable.SubTable
	schemas  map[string]*property.Schema
	writeSet map[writeKey]writeValue
	readSet  map[readKey]readValue
	lockSet  map[string]struct{}

	lastLsn uint64
}

// Begin creates a new transaction context, requesting a read
// timestamp from manager and writing the WAL begin record if ring is
// non-nil.
func Begin(manager *Manager, txnType TxnType, lockManagerType LockManagerType) *Context {
	ctx := &Context{
		id:              uuid.New(),
		txnType:         txnType,
		readTs:          manager.RequestTs(),
		lockManagerType: lockManagerType,
		manager:         manager,
		pool:            manager.pool,
		ring:            manager.ring,
		logger:          manager.logger,
		tables:          make(map[string]*subtable.SubTable),
		schemas:         make(map[string]*property.Schema),
		writeSet:        make(map[writeKey]writeValue),
		readSet:         make(map[readKey]readValue),
		lockSet:         make(map[string]struct{}),
	}
	ctx.writeLog(wal.RecordBegin)
	return ctx
}

// ID returns the transaction's identifier.
func (c *Context) ID() uuid.UUID { return c.id }

// ReadTs returns the transaction's snapshot read timestamp.
func (c *Context) ReadTs() tsutil.Ts { return c.readTs }

// SetRow buffers an insert/update of row under subTableKey, acquiring
// the necessary lock first. The write is not visible to other
// transactions until Commit succeeds.
func (c *Context) SetRow(subTableKey string, row property.Row, opts options.Options) error {
	if c.txnType == ReadOnly {
		return status.New(status.Internal, "txn: read-only transaction cannot write")
	}
	sk, err := row.SortKey(opts.Schema)
	if err != nil {
		return status.Wrap(status.Internal, err, "txn: extracting sort key")
	}
	if err := validateLockKeyParts(subTableKey, sk); err != nil {
		return status.Wrap(status.Internal, err, "txn: validating keys")
	}
	if err := c.acquireLock(subTableKey, sk, opts); err != nil {
		return err
	}
	c.schemas[subTableKey] = opts.Schema
	c.writeSet[writeKey{subTableKey, sk.String()}] = writeValue{row: row}
	return nil
}

// DeleteRow buffers a delete of sk under subTableKey.
func (c *Context) DeleteRow(subTableKey string, sk property.SortKey, opts options.Options) error {
	if c.txnType == ReadOnly {
		return status.New(status.Internal, "txn: read-only transaction cannot write")
	}
	if err := validateLockKeyParts(subTableKey, sk); err != nil {
		return status.Wrap(status.Internal, err, "txn: validating keys")
	}
	if err := c.acquireLock(subTableKey, sk, opts); err != nil {
		return err
	}
	c.schemas[subTableKey] = opts.Schema
	c.writeSet[writeKey{subTableKey, sk.String()}] = writeValue{deleted: true}
	return nil
}

// validateLockKeyParts enforces spec.md §3's "# is reserved" invariant
// on both halves of a lock key before acquireLock joins them with '#'
// (see extractSubTableKey below, which splits on the first one).
func validateLockKeyParts(subTableKey string, sk property.SortKey) error {
	if err := property.ValidateNoDelimiter([]byte(subTableKey)); err != nil {
		return err
	}
	return property.ValidateNoDelimiter([]byte(sk))
}

// GetRow reads sk under subTableKey. A read-write transaction first
// consults its own write set (read-your-writes), then falls back to
// the real table and records the version it observed for later
// validation; a read-only transaction always reads straight through.
func (c *Context) GetRow(subTableKey string, sk property.SortKey, opts options.Options) (property.Row, error) {
	sub := c.getSubTable(subTableKey, opts)
	if c.txnType == ReadOnly {
		row, _, err := sub.GetRow(sk, c.readTs, opts)
		return row, err
	}
	wk := writeKey{subTableKey, sk.String()}
	if wv, ok := c.writeSet[wk]; ok {
		if wv.deleted {
			return nil, status.ErrNotFound
		}
		return wv.row, nil
	}
	row, ts, err := sub.GetRow(sk, c.readTs, opts)
	rk := readKey{subTableKey, sk.String()}
	if status.IsNotFound(err) {
		c.readSet[rk] = readValue{found: false}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	c.readSet[rk] = readValue{ts: ts, found: true}
	return row, nil
}

// Commit runs the OCC commit protocol: write intents, grab a commit
// timestamp, validate every read, then commit or abort every intent.
// Locks are always released on the way out, committed or not.
func (c *Context) Commit() error {
	if c.txnType == ReadOnly {
		return nil
	}
	defer c.releaseLocks()

	checkIntentLocked := c.lockManagerType == Inlined
	if err := c.writeIntents(checkIntentLocked); err != nil {
		c.logger.Info("txn: failed to write intents, aborting",
			zap.String("txn_id", c.id.String()), zap.Error(err))
		return status.Wrap(status.Abort, err, "txn: write intents failed")
	}

	c.commitTs = c.manager.RequestTs()
	if !c.validateRead() {
		c.logger.Info("txn: read validation failed, aborting",
			zap.String("txn_id", c.id.String()), zap.Uint64("commit_ts", uint64(c.commitTs)))
		c.abortIntents()
		c.writeLog(wal.RecordAbort)
		return status.New(status.Abort, "txn: read validation failed")
	}
	c.commitIntents()
	c.writeLog(wal.RecordCommit)
	c.manager.Commit(c)
	return nil
}

// Abort releases every lock this transaction holds without writing
// any intents. Safe to call even if no write ever happened.
func (c *Context) Abort() {
	c.releaseLocks()
	c.writeLog(wal.RecordAbort)
}

func (c *Context) getSubTable(key string, opts options.Options) *subtable.SubTable {
	if sub, ok := c.tables[key]; ok {
		return sub
	}
	sub := subtable.Open(key, c.pool)
	c.tables[key] = sub
	return sub
}

// acquireLock is a no-op under Inlined (conflict detection happens
// inline in Page.SetRow/DeleteRow instead) and otherwise locks
// "subTableKey#sortKey" exactly once per transaction, through either
// the Manager's shared table (Centralized) or the subtable's own
// table (Decentralized).
func (c *Context) acquireLock(subTableKey string, sk property.SortKey, opts options.Options) error {
	if c.lockManagerType == Inlined {
		return nil
	}
	lockKey := subTableKey + "#" + sk.String()
	if _, held := c.lockSet[lockKey]; held {
		return nil
	}
	var err error
	switch c.lockManagerType {
	case Centralized:
		err = c.manager.LockTable().Lock(lockKey, c.readTs)
	case Decentralized:
		sub := c.getSubTable(subTableKey, opts)
		err = sub.GetLockTable().Lock(lockKey, c.readTs)
	}
	if err != nil {
		return status.Wrap(status.Abort, err, "txn: acquiring lock")
	}
	c.lockSet[lockKey] = struct{}{}
	return nil
}

func (c *Context) releaseLocks() {
	if c.lockManagerType == Inlined {
		return
	}
	for lockKey := range c.lockSet {
		subTableKey := extractSubTableKey(lockKey)
		switch c.lockManagerType {
		case Centralized:
			c.manager.LockTable().Unlock(lockKey, c.readTs)
		case Decentralized:
			sub := c.tables[subTableKey]
			if sub != nil {
				sub.GetLockTable().Unlock(lockKey, c.readTs)
			}
		}
	}
}

func extractSubTableKey(lockKey string) string {
	for i := 0; i < len(lockKey); i++ {
		if lockKey[i] == '#' {
			return lockKey[:i]
		}
	}
	return lockKey
}

// sortedWriteKeys returns the write set's keys in deterministic order
// so every participant (and, eventually, replay) sees intents written
// and stamped in the same order across runs.
func (c *Context) sortedWriteKeys() []writeKey {
	keys := make([]writeKey, 0, len(c.writeSet))
	for k := range c.writeSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subTableKey != keys[j].subTableKey {
			return keys[i].subTableKey < keys[j].subTableKey
		}
		return keys[i].sortKey < keys[j].sortKey
	})
	return keys
}

// writeIntents installs a locked intent for every buffered write,
// using each subtable's own schema (recorded when the write was
// buffered) to derive its sort key encoding. If any installation
// fails (only possible under Inlined, via CheckIntentLocked), every
// intent already written is rolled back to Aborted before returning
// the error.
func (c *Context) writeIntents(checkIntentLocked bool) error {
	keys := c.sortedWriteKeys()
	var written []writeKey
	for _, k := range keys {
		opts := options.Options{Schema: c.schemas[k.subTableKey], CheckIntentLocked: checkIntentLocked}
		sub := c.getSubTable(k.subTableKey, opts)
		v := c.writeSet[k]
		var err error
		if v.deleted {
			err = sub.DeleteRow(property.SortKey(k.sortKey), tsutil.MarkLocked(c.readTs), opts)
		} else {
			err = sub.SetRow(v.row, tsutil.MarkLocked(c.readTs), opts)
		}
		if err != nil {
			for _, wk := range written {
				undoSub := c.getSubTable(wk.subTableKey, opts)
				_ = undoSub.SetTs(property.SortKey(wk.sortKey), tsutil.AbortedTxnTs, options.Options{OwnerTs: c.readTs})
			}
			return err
		}
		written = append(written, k)
	}
	return nil
}

// validateRead re-reads every entry in the read set as of commit_ts,
// with owner_ts set to this transaction's own read timestamp so it
// still sees its own intents, and checks that nothing changed.
func (c *Context) validateRead() bool {
	opts := options.Options{OwnerTs: c.readTs}
	for k, v := range c.readSet {
		sub := c.tables[k.subTableKey]
		if sub == nil {
			sub = c.getSubTable(k.subTableKey, opts)
		}
		_, ts, err := sub.GetRow(property.SortKey(k.sortKey), c.commitTs, opts)
		if v.found {
			if err != nil || ts != v.ts {
				return false
			}
		} else if !status.IsNotFound(err) {
			return false
		}
	}
	return true
}

func (c *Context) commitIntents() {
	for _, k := range c.sortedWriteKeys() {
		sub := c.tables[k.subTableKey]
		_ = sub.SetTs(property.SortKey(k.sortKey), c.commitTs, options.Options{OwnerTs: c.readTs})
	}
}

func (c *Context) abortIntents() {
	for _, k := range c.sortedWriteKeys() {
		sub := c.tables[k.subTableKey]
		_ = sub.SetTs(property.SortKey(k.sortKey), tsutil.AbortedTxnTs, options.Options{OwnerTs: c.readTs})
	}
}

// writeLog appends a WAL record for this transaction's begin, commit
// or abort boundary, tracking the highest LSN seen. A nil ring (the
// embeddable façade's WAL-disabled mode) makes this a no-op, mirroring
// WriteLogHelper_'s null log_store check in the original source.
func (c *Context) writeLog(kind wal.RecordKind) {
	if c.ring == nil {
		return
	}
	rec := wal.EncodeRecord(kind, uint64(c.readTs), uint64(c.commitTs))
	lsn, err := c.ring.Append(rec)
	if err != nil {
		c.logger.Error("txn: WAL append failed", zap.Error(err))
		return
	}
	if lsn > c.lastLsn {
		c.lastLsn = lsn
	}
}
