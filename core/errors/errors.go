// Package errors defines the failure taxonomy shared by every ledger
// operation. Each failure aborts the enclosing transaction; callers retry by
// submitting a new one.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a transaction was aborted.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindNotFound
	KindInvariant
	KindDeadline
	KindAlreadyDone
)

var (
	ErrAuthorization = stderrors.New("authorization failure")
	ErrNotFound      = stderrors.New("not found")
	ErrInvariant     = stderrors.New("invariant violation")
	ErrDeadline      = stderrors.New("deadline violation")
	ErrAlreadyDone   = stderrors.New("already done")
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindInvariant:
		return "invariant"
	case KindDeadline:
		return "deadline"
	case KindAlreadyDone:
		return "already_done"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuthorization:
		return ErrAuthorization
	case KindNotFound:
		return ErrNotFound
	case KindInvariant:
		return ErrInvariant
	case KindDeadline:
		return ErrDeadline
	case KindAlreadyDone:
		return ErrAlreadyDone
	default:
		return nil
	}
}

// Error is a classified transaction failure. Op names the ledger operation
// that rejected the call.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return e.Op + ": " + e.Msg
}

// Is lets errors.Is match the kind sentinels.
func (e *Error) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

func newError(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Authorization(op, format string, args ...interface{}) error {
	return newError(KindAuthorization, op, format, args...)
}

func NotFound(op, format string, args ...interface{}) error {
	return newError(KindNotFound, op, format, args...)
}

func Invariant(op, format string, args ...interface{}) error {
	return newError(KindInvariant, op, format, args...)
}

func Deadline(op, format string, args ...interface{}) error {
	return newError(KindDeadline, op, format, args...)
}

func AlreadyDone(op, format string, args ...interface{}) error {
	return newError(KindAlreadyDone, op, format, args...)
}

// KindOf returns the classification of err, or KindUnknown for infrastructure
// failures that are not part of the taxonomy.
func KindOf(err error) Kind {
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.Kind
	}
	return KindUnknown
}
