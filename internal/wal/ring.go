package wal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Ring is the lock-free, multi-writer segmented log described in
// spec §4.3: a fixed-size array of segments traversed circularly,
// with at most one Open at a time, and a single background flusher
// that drains sealed segments to disk in strict ring order.
//
// Grounded on log_segment.h / posix_log_store.cpp from the original
// source; the executor/stop-channel shape of the background loop
// mirrors the teacher's pkg/txn/e_executor.go goroutine-with-stopCh
// idiom.
type Ring struct {
	logger *zap.Logger
	file   LogFile

	segments []*Segment

	// openIdx is the ring index of the currently Open segment. Only
	// mutated while holding openMu, which serializes the rare
	// seal-and-open-next transition; it never serializes the hot
	// write path itself (AcquireControlGuard is lock-free).
	openMu  sync.Mutex
	openIdx int

	flushInterval time.Duration
	wake          chan struct{}
	stop          chan struct{}
	stopped       atomic.Bool
	wg            sync.WaitGroup

	persistentLsn atomic.Uint64
}

// OpenRing creates segmentCount segments of segmentSize bytes, opens
// the first one at LSN 0, and starts the background flusher.
func OpenRing(file LogFile, segmentCount, segmentSize int, flushInterval time.Duration, logger *zap.Logger) *Ring {
	if logger == nil {
		logger = zap.NewNop()
	}
	segments := make([]*Segment, segmentCount)
	for i := range segments {
		segments[i] = newSegment(segmentSize)
	}
	r := &Ring{
		logger:        logger,
		file:          file,
		segments:      segments,
		flushInterval: flushInterval,
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
	}
	r.segments[0].OpenLogSegment(0)
	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Append writes b into the ring, retrying across segments as needed,
// and returns the LSN of the start of b. It blocks only long enough
// to back off under writer-count saturation or to seal a full
// segment; it never takes a mutex on the hot path.
func (r *Ring) Append(b []byte) (uint64, error) {
	for {
		idx := r.currentOpenIndex()
		seg := r.segments[idx]
		guard, err := seg.AcquireControlGuard(len(b))
		switch {
		case err == nil:
			lsn := seg.startLsn + guard.Offset()
			copy(guard.Bytes(), b)
			guard.onSeal = r.onSegmentSealed
			guard.Release()
			return lsn, nil
		case errors.Is(err, ErrMustSeal):
			r.sealAndOpenNext(idx)
			continue
		case errors.Is(err, ErrMustWait):
			time.Sleep(time.Microsecond)
			continue
		default:
			return 0, err
		}
	}
}

func (r *Ring) currentOpenIndex() int {
	r.openMu.Lock()
	defer r.openMu.Unlock()
	return r.openIdx
}

// sealAndOpenNext seals the segment at idx (a no-op if some other
// writer already sealed it) and opens the next ring slot. openMu and
// the idx == openIdx check make sure only one caller advances the ring
// past idx, whether or not its own seal CAS was the one that won.
func (r *Ring) sealAndOpenNext(idx int) {
	r.openMu.Lock()
	defer r.openMu.Unlock()
	if idx != r.openIdx {
		// Someone else already advanced the ring.
		return
	}
	seg := r.segments[idx]
	sealedLsn, sealed := seg.TrySealLogSegment()
	if !sealed {
		// Already sealed by a concurrent writer or the flusher; the
		// opener race is decided by whoever updates openIdx below, so
		// just recompute what the next start LSN must be and proceed.
		sealedLsn = seg.startLsn + seg.SealedLength()
	}
	next := (idx + 1) % len(r.segments)
	r.segments[next].OpenLogSegment(sealedLsn)
	r.openIdx = next
}

// onSegmentSealed is invoked by a Guard.Release when its release was
// the one that drained the last writer off a sealed segment. It just
// nudges the flusher; the flusher itself decides what to do.
func (r *Ring) onSegmentSealed(seg *Segment) {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// flushLoop is the single background worker: round-robin over
// segments, append+fsync whichever is Io, and otherwise either wait
// for a wake-up or proactively seal the open segment once the flush
// interval elapses, bounding worst-case latency for a slowly filling
// segment.
func (r *Ring) flushLoop() {
	defer r.wg.Done()
	current := 0
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		seg := r.segments[current]
		if seg.State() == stateIo {
			if err := r.flushSegment(seg); err != nil {
				r.logger.Fatal("wal: fatal io error flushing segment", zap.Error(err))
			}
			current = (current + 1) % len(r.segments)
			continue
		}

		select {
		case <-r.stop:
			return
		case <-r.wake:
		case <-time.After(r.flushInterval):
		}

		if seg.State() != stateIo {
			r.sealAndOpenNext(r.indexOf(seg))
		}
	}
}

func (r *Ring) indexOf(seg *Segment) int {
	for i, s := range r.segments {
		if s == seg {
			return i
		}
	}
	return -1
}

// flushSegment appends a sealed segment's bytes to the log file,
// fsyncs, and frees it. Append/Sync errors are fatal per spec §4.3
// and §7 — there is no recoverable path, so the caller logs at Fatal
// and the process terminates.
func (r *Ring) flushSegment(seg *Segment) error {
	length := seg.SealedLength()
	if err := r.file.Append(seg.buffer[:length]); err != nil {
		return errors.Wrap(err, "wal: append failed")
	}
	if err := r.file.Sync(); err != nil {
		return errors.Wrap(err, "wal: fsync failed")
	}
	r.persistentLsn.Store(seg.startLsn + length)
	seg.free()
	return nil
}

// PersistentLsn returns the LSN of the highest fully flushed segment.
// Best-effort, observability-only: spec §9 notes GetPersistentLsn is
// not wired to anything correctness-critical in the source, and log
// replay / recovery is out of scope here too.
func (r *Ring) PersistentLsn() uint64 {
	return r.persistentLsn.Load()
}

// Close stops the flusher and closes the underlying log file.
func (r *Ring) Close() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	r.wg.Wait()
	return r.file.Close()
}
