package status_test

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"arcanedb/internal/status"
)

func TestOfKindMatchesWrappedCause(t *testing.T) {
	base := status.New(status.Conflict, "row locked")
	wrapped := fmt.Errorf("commit failed: %w", base)
	require.True(t, status.IsConflict(wrapped))
	require.False(t, status.IsAbort(wrapped))
}

func TestWrapPreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	s := status.Wrap(status.IoFatal, cause, "fsync")
	require.True(t, status.IsIoFatal(s))
	require.Equal(t, cause, errors.Cause(s.Unwrap()))
}

func TestWrapOfNilIsNil(t *testing.T) {
	require.Nil(t, status.Wrap(status.Internal, nil, "unreachable"))
}

func TestIsComparesByKindOnly(t *testing.T) {
	a := status.New(status.NotFound, "a")
	b := status.New(status.NotFound, "b")
	require.True(t, a.Is(b))
	require.False(t, a.Is(status.New(status.Conflict, "a")))
}
