// Package caveerr defines the error taxonomy shared by every CAVE
// subsystem: the table engine, the policy engine and the sandbox kernel
// all classify failures into the same small set of kinds so callers (CLI,
// future HTTP/RPC adapters) can map them to a stable response without
// inspecting subsystem-specific error types.
package caveerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy members from the specification.
type Kind string

const (
	NotFound        Kind = "not_found"
	Conflict        Kind = "conflict"
	InvalidArgument Kind = "invalid_argument"
	Unauthorized    Kind = "unauthorized"
	Timeout         Kind = "timeout"
	RuntimeFailure  Kind = "runtime_failure"
	StorageFailure  Kind = "storage_failure"
)

// Error wraps an inner cause with a taxonomy Kind. Construct with the
// New<Kind> helpers below rather than this struct directly.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, caveerr.ErrNotFound) to work by comparing Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewNotFound(op string, err error) error        { return newErr(NotFound, op, err) }
func NewConflict(op string, err error) error        { return newErr(Conflict, op, err) }
func NewInvalidArgument(op string, err error) error { return newErr(InvalidArgument, op, err) }
func NewUnauthorized(op string, err error) error    { return newErr(Unauthorized, op, err) }
func NewTimeout(op string, err error) error         { return newErr(Timeout, op, err) }
func NewRuntimeFailure(op string, err error) error  { return newErr(RuntimeFailure, op, err) }
func NewStorageFailure(op string, err error) error  { return newErr(StorageFailure, op, err) }

// KindOf reports the taxonomy Kind of err, or "" if err was not produced
// by this package (or one of its sentinel wrappers).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel values usable with errors.Is for callers that don't care about
// the wrapped operation/cause, e.g. errors.Is(err, caveerr.ErrNotFound).
var (
	ErrNotFound        = &Error{Kind: NotFound}
	ErrConflict        = &Error{Kind: Conflict}
	ErrInvalidArgument = &Error{Kind: InvalidArgument}
	ErrUnauthorized    = &Error{Kind: Unauthorized}
	ErrTimeout         = &Error{Kind: Timeout}
	ErrRuntimeFailure  = &Error{Kind: RuntimeFailure}
	ErrStorageFailure  = &Error{Kind: StorageFailure}
)
