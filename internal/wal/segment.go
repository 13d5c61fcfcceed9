package wal

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// segmentState is the coarse lifecycle state of a segment, tracked
// separately from the control word because it governs who is allowed
// to run I/O against the buffer, not admission of writers.
type segmentState int32

const (
	stateFree segmentState = iota
	stateOpen
	stateIo
)

// ErrMustSeal is returned by AcquireControlGuard when the segment has
// no room left for the requested length; the caller must seal this
// segment (if it hasn't been already) and retry on the next one.
var ErrMustSeal = errors.New("wal: segment must be sealed, retry on next segment")

// ErrMustWait is returned by AcquireControlGuard when the writer
// count is saturated; the caller should back off briefly and retry.
var ErrMustWait = errors.New("wal: writer count saturated, retry shortly")

// Segment is one fixed-size slot in the ring: a byte buffer plus the
// packed control word that coordinates concurrent writers without a
// mutex.
type Segment struct {
	state    atomic.Int32
	size     int
	startLsn uint64
	buffer   []byte
	control  atomic.Uint64
}

func newSegment(size int) *Segment {
	return &Segment{size: size, buffer: make([]byte, size)}
}

// Guard represents exclusive ownership of a byte range within a
// segment's buffer. Its Release method is the scoped-guard
// equivalent of the source's ControlGuard destructor: it decrements
// the writer count and, if this was the last writer on a sealed
// segment, hands the segment to the flusher.
type Guard struct {
	segment *Segment
	offset  uint64
	length  int
	onSeal  func(*Segment)
	done    bool
}

// Offset is where in the segment buffer this writer should place its
// bytes.
func (g *Guard) Offset() uint64 { return g.offset }

// Bytes returns the exclusive byte range this guard owns.
func (g *Guard) Bytes() []byte {
	return g.segment.buffer[g.offset : g.offset+uint64(g.length)]
}

// Release decrements the writer count and, if this was the last
// writer leaving a sealed segment, transitions it Open -> Io and
// notifies the flusher via onSeal. Safe to call at most once; callers
// should defer it immediately after a successful AcquireControlGuard.
func (g *Guard) Release() {
	if g.done {
		return
	}
	g.done = true
	g.segment.onWriterExit(g.onSeal)
}

// AcquireControlGuard implements the writer admission protocol from
// spec §4.3: grow NextLsnOffset and WriterCount atomically via CAS,
// or signal the caller to seal-and-retry / wait-and-retry without
// ever taking a lock.
//
// Unlike the admission loop in the original source (which does not
// check the sealed bit at all), this checks isSealed first. Spec §4.3
// states as an invariant that "after IsSealed is set, NextLsnOffset
// never changes" — admitting a writer into a sealed segment would
// violate that, so this closes what is an ambiguity in the original
// left as an Open Question (see DESIGN.md).
func (s *Segment) AcquireControlGuard(length int) (*Guard, error) {
	for {
		current := controlWord(s.control.Load())
		if current.isSealed() {
			return nil, ErrMustSeal
		}
		offset := current.lsnOffset()
		if int(offset)+length > s.size {
			return nil, ErrMustSeal
		}
		if current.writerNum()+1 > maxWriterNum {
			return nil, ErrMustWait
		}
		next := current.incrWriterNum().bumpLsn(length)
		if s.control.CompareAndSwap(uint64(current), uint64(next)) {
			return &Guard{segment: s, offset: offset, length: length}, nil
		}
	}
}

// onWriterExit decrements the writer count; if the segment is sealed
// and this was the last writer, it transitions to Io and calls
// onSeal so the caller can wake the flusher.
func (s *Segment) onWriterExit(onSeal func(*Segment)) {
	for {
		current := controlWord(s.control.Load())
		next := current.decrWriterNum()
		if s.control.CompareAndSwap(uint64(current), uint64(next)) {
			if next.writerNum() == 0 && next.isSealed() {
				s.state.Store(int32(stateIo))
				if onSeal != nil {
					onSeal(s)
				}
			}
			return
		}
	}
}

// OpenLogSegment transitions a Free segment to Open with a fresh
// start LSN and a zeroed control word.
func (s *Segment) OpenLogSegment(startLsn uint64) {
	s.startLsn = startLsn
	s.control.Store(0)
	s.state.Store(int32(stateOpen))
}

// TrySealLogSegment CAS-sets the sealed bit. Returns the segment's
// final LSN (start_lsn + sealed offset) and true, or false if the
// segment was already sealed. If no writer is active at the moment of
// sealing, no Guard.Release will follow, so the segment moves to Io
// here instead.
func (s *Segment) TrySealLogSegment() (uint64, bool) {
	for {
		current := controlWord(s.control.Load())
		if current.isSealed() {
			return 0, false
		}
		next := current.markSealed()
		if s.control.CompareAndSwap(uint64(current), uint64(next)) {
			if next.writerNum() == 0 {
				s.state.Store(int32(stateIo))
			}
			return s.startLsn + next.lsnOffset(), true
		}
	}
}

// State reports the current lifecycle state, for tests and the
// flusher's polling loop.
func (s *Segment) State() segmentState { return segmentState(s.state.Load()) }

// SealedLength returns NextLsnOffset as of now; meaningful once the
// segment is sealed, since the invariant guarantees it is then
// immutable.
func (s *Segment) SealedLength() uint64 {
	return controlWord(s.control.Load()).lsnOffset()
}

// free returns the segment to the Free state after its buffer has
// been durably flushed.
func (s *Segment) free() {
	s.state.Store(int32(stateFree))
}
