// Package config holds the small set of tunables the original source
// references as a Config type (see the kBwTreeDeltaChainLength-style
// names in versioned_bwtree_page_test.cpp) but never ships concrete
// values for. They are exposed here as a struct with defaults rather
// than a config-file format, since parsing configuration files is
// explicitly out of scope.
package config

import "time"

// Config groups the tunables that govern page compaction and WAL
// segment sizing/flushing.
type Config struct {
	// BwTreeDeltaChainLength is the delta chain length above which a
	// page triggers compaction.
	BwTreeDeltaChainLength int

	// LogSegmentSize is the byte capacity of a single WAL segment.
	LogSegmentSize int

	// LogSegmentCount is the number of segments in the ring.
	LogSegmentCount int

	// MaximumWriterNum records the 15-bit writer-count limit of the
	// packed control word (1<<15 - 1). The WAL ring does not read it;
	// segments always use that fixed limit.
	MaximumWriterNum int

	// LogStoreFlushInterval is how long the flusher sleeps between
	// polls of the currently open segment before proactively sealing
	// it, bounding worst-case flush latency for a slowly-filling
	// segment.
	LogStoreFlushInterval time.Duration

	// LockTimeout bounds how long a transaction waits to acquire a
	// contended lock before giving up and aborting.
	LockTimeout time.Duration
}

// Default returns sane defaults sized for tests and small embeddings,
// consistent with the chain-length compaction trigger and segment
// ring described in spec §4.1 and §4.3.
func Default() *Config {
	return &Config{
		BwTreeDeltaChainLength: 8,
		LogSegmentSize:         4 << 20, // 4MiB
		LogSegmentCount:        4,
		MaximumWriterNum:       (1 << 15) - 1,
		LogStoreFlushInterval:  10 * time.Millisecond,
		LockTimeout:            500 * time.Millisecond,
	}
}
