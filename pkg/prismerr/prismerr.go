// Package prismerr defines the error taxonomy shared by the consensus
// engine, blob store, CRDT kernel, and coordinator: one Error struct whose
// Kind names the propagation bucket, carrying a stable code and the
// structured detail fields callers need to retarget or log. Every exported operation
// wraps the underlying cause with fmt.Errorf("...: %w", err) so
// errors.Is/errors.As keep working across package boundaries.
package prismerr

import "fmt"

// Kind names which propagation bucket an error belongs to.
type Kind string

const (
	// KindTransient errors are retried internally up to a configured
	// bound, then surfaced (RPC timeout, transient disk failure).
	KindTransient Kind = "transient"
	// KindPrecondition errors are surfaced immediately with enough
	// context for the caller to retarget (NotLeader, InvalidTerm).
	KindPrecondition Kind = "precondition"
	// KindConsistency errors abort the current operation and must never
	// be silently papered over (LogInconsistency, HashMismatch).
	KindConsistency Kind = "consistency"
	// KindResource errors fail fast (StorageFull, NoQuorum).
	KindResource Kind = "resource"
	// KindFatal errors require operator intervention and stop the
	// owning component (Corruption, InvariantViolation).
	KindFatal Kind = "fatal"
)

// Error is the common shape of every surfaced PRISM error: a stable kind
// and code, a human-readable message, and an optional structured detail
// payload for logging and automation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s/%s]: %v", e.Message, e.Kind, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s [%s/%s]", e.Message, e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error without a detail payload.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs an Error around cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
