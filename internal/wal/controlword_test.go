package wal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestControlWordPackingRoundTrip(t *testing.T) {
	var c controlWord
	require.False(t, c.isSealed())
	require.Equal(t, 0, c.writerNum())
	require.EqualValues(t, 0, c.lsnOffset())

	c = c.incrWriterNum().incrWriterNum()
	require.Equal(t, 2, c.writerNum())

	c = c.bumpLsn(128)
	require.EqualValues(t, 128, c.lsnOffset())

	c = c.decrWriterNum()
	require.Equal(t, 1, c.writerNum())

	c = c.markSealed()
	require.True(t, c.isSealed())
	// Sealing must not disturb writer count or LSN offset.
	require.Equal(t, 1, c.writerNum())
	require.EqualValues(t, 128, c.lsnOffset())
}

func TestAcquireControlGuardAdmitsUntilCapacity(t *testing.T) {
	s := newSegment(64)
	s.OpenLogSegment(1000)

	g1, err := s.AcquireControlGuard(40)
	require.NoError(t, err)
	require.EqualValues(t, 0, g1.Offset())

	g2, err := s.AcquireControlGuard(40)
	require.ErrorIs(t, err, ErrMustSeal)
	_ = g2

	g1.Release()
	require.Equal(t, stateOpen, s.State())
}

func TestAcquireControlGuardRejectsAfterSeal(t *testing.T) {
	s := newSegment(64)
	s.OpenLogSegment(0)

	g, err := s.AcquireControlGuard(16)
	require.NoError(t, err)

	_, sealed := s.TrySealLogSegment()
	require.True(t, sealed)

	_, err = s.AcquireControlGuard(8)
	require.ErrorIs(t, err, ErrMustSeal)

	require.Equal(t, stateOpen, s.State())
	g.Release()
	require.Equal(t, stateIo, s.State())
}

func TestOnWriterExitTransitionsToIoOnlyForLastWriter(t *testing.T) {
	s := newSegment(64)
	s.OpenLogSegment(0)

	g1, err := s.AcquireControlGuard(8)
	require.NoError(t, err)
	g2, err := s.AcquireControlGuard(8)
	require.NoError(t, err)

	_, sealed := s.TrySealLogSegment()
	require.True(t, sealed)

	g1.Release()
	require.Equal(t, stateOpen, s.State(), "one writer still outstanding")

	g2.Release()
	require.Equal(t, stateIo, s.State(), "last writer flips segment to Io")
}
