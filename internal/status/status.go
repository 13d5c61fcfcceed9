// Package status implements the abstract error kinds of the engine
// (spec §7): NotFound, Conflict, Abort, IoFatal and Internal. Commit
// is not modeled as an error — it is a successful outcome, returned
// as a plain value by the transaction layer instead.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the abstract error kinds from spec §7.
type Kind int

const (
	// NotFound means a row was absent at the requested timestamp.
	NotFound Kind = iota
	// Conflict means an intent is locked by another uncommitted
	// transaction.
	Conflict
	// Abort means a transaction could not be committed.
	Abort
	// IoFatal means a WAL append or fsync failed; non-recoverable.
	IoFatal
	// Internal means an invariant was violated.
	Internal
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Abort:
		return "Abort"
	case IoFatal:
		return "IoFatal"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Status is an error carrying one of the abstract kinds above, plus
// an optional wrapped cause.
type Status struct {
	kind  Kind
	cause error
}

// New builds a Status of the given kind with a message.
func New(kind Kind, msg string) *Status {
	return &Status{kind: kind, cause: errors.New(msg)}
}

// Newf builds a Status of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Status {
	return &Status{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it as the
// cause so errors.Cause / errors.Unwrap still reach it.
func Wrap(kind Kind, err error, msg string) *Status {
	if err == nil {
		return nil
	}
	return &Status{kind: kind, cause: errors.Wrap(err, msg)}
}

func (s *Status) Error() string {
	if s == nil {
		return "<nil status>"
	}
	return fmt.Sprintf("%s: %s", s.kind, s.cause)
}

func (s *Status) Unwrap() error { return s.cause }

// Kind returns the abstract error kind.
func (s *Status) Kind() Kind { return s.kind }

// Is makes errors.Is(err, target) match when target is another
// *Status of the same kind (e.g. status.ErrNotFound), whatever its
// message. To test against a bare Kind, use OfKind below.
func (s *Status) Is(target error) bool {
	other, ok := target.(*Status)
	if !ok {
		return false
	}
	return s.kind == other.kind
}

// OfKind reports whether err (or any error it wraps) is a *Status of
// the given kind.
func OfKind(err error, kind Kind) bool {
	var s *Status
	if errors.As(err, &s) {
		return s.kind == kind
	}
	return false
}

// IsNotFound reports whether err is a NotFound status.
func IsNotFound(err error) bool { return OfKind(err, NotFound) }

// IsConflict reports whether err is a Conflict status.
func IsConflict(err error) bool { return OfKind(err, Conflict) }

// IsAbort reports whether err is an Abort status.
func IsAbort(err error) bool { return OfKind(err, Abort) }

// IsIoFatal reports whether err is an IoFatal status.
func IsIoFatal(err error) bool { return OfKind(err, IoFatal) }

// IsInternal reports whether err is an Internal status.
func IsInternal(err error) bool { return OfKind(err, Internal) }

// ErrNotFound is a bare sentinel usable with errors.Is when callers
// don't need a message, mirroring Status::NotFound() in the source.
var ErrNotFound = New(NotFound, "row not found")
