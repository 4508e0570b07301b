// Package ddpt holds the types and errors shared by every layer of the
// deferred-execution JIT runtime: the process-unique array id, the
// device and team tags, the at-exit hooks, and the error taxonomy raised
// by the Registry, the dependency manager and the JIT engine.
package ddpt

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// Guid is the process-unique id of a logical array. Guid 0 (NoGuid) is
// reserved and never allocated by NextGuid.
type Guid uint64

// NoGuid is the reserved sentinel meaning "no output array".
const NoGuid Guid = 0

var guidCounter uint64

// NextGuid allocates a fresh, monotonically increasing Guid. It never
// returns NoGuid.
func NextGuid() Guid {
	return Guid(atomic.AddUint64(&guidCounter, 1))
}

// Device names an accelerator target. The empty string means host.
type Device string

// Team is an opaque communicator identity. Team 0 means the array is not
// distributed.
type Team uint64

// Distributed reports whether t denotes a distributed array.
func (t Team) Distributed() bool { return t != 0 }

// ErrUnknownGuid is returned when the Registry has no entry for a guid.
type ErrUnknownGuid struct {
	Guid Guid
}

func (e *ErrUnknownGuid) Error() string {
	return fmt.Sprintf("unknown guid %d", e.Guid)
}

// ErrUnknownDtype is returned by dtype dispatch on an out-of-range tag.
type ErrUnknownDtype struct {
	Tag int
}

func (e *ErrUnknownDtype) Error() string {
	return fmt.Sprintf("unknown dtype tag %d", e.Tag)
}

// ErrPassFailure is returned when the compiler pass pipeline fails.
type ErrPassFailure struct {
	Cause error
}

func (e *ErrPassFailure) Error() string   { return fmt.Sprintf("pass pipeline failed: %v", e.Cause) }
func (e *ErrPassFailure) Unwrap() error   { return e.Cause }

// ErrCompileFailure is returned when execution-engine construction fails.
type ErrCompileFailure struct {
	Cause error
}

func (e *ErrCompileFailure) Error() string { return fmt.Sprintf("compile failed: %v", e.Cause) }
func (e *ErrCompileFailure) Unwrap() error { return e.Cause }

// ErrLookupFailure is returned when the packed ABI entry symbol can't be
// found in a compiled module.
type ErrLookupFailure struct {
	Symbol string
}

func (e *ErrLookupFailure) Error() string {
	return fmt.Sprintf("entry symbol %s not found", e.Symbol)
}

// ErrInvariantViolation marks a programming-error condition (e.g.
// add_value called twice for the same guid). It is always fatal; callers
// should treat it like the teacher's RegisterAtExit "BUG:" panics.
type ErrInvariantViolation struct {
	Msg string
}

func (e *ErrInvariantViolation) Error() string { return "invariant violation: " + e.Msg }

// Fatal reports that this kind of error must never be recovered from.
func (e *ErrInvariantViolation) Fatal() bool { return true }

// Wrap wraps err with msg via xerrors.Errorf, the teacher's way of
// carrying an underlying error. Other packages here also wrap with
// fmt.Errorf("%w") or xerrors.Errorf directly.
func Wrap(msg string, err error) error {
	return xerrors.Errorf(msg+": %w", err)
}
