package core

import (
	"errors"
	"fmt"
)

// ErrKind classifies every failure the engine can surface. The
// orchestrator folds any lower-level error into exactly one kind
// before it crosses the package boundary.
type ErrKind int

const (
	KindNone ErrKind = iota
	KindInvalidInput
	KindNetworkError
	KindTimeout
	KindProviderRejected
	KindPuzzleUnsolvable
	KindValidationFailed
	KindEncodingError
)

func (k ErrKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindNetworkError:
		return "network error"
	case KindTimeout:
		return "timeout"
	case KindProviderRejected:
		return "provider rejected"
	case KindPuzzleUnsolvable:
		return "puzzle unsolvable"
	case KindValidationFailed:
		return "validation failed"
	case KindEncodingError:
		return "encoding error"
	default:
		return "unknown"
	}
}

// Code returns the numeric error code used at the call boundary.
// Zero is reserved for success.
func (k ErrKind) Code() int {
	return int(k)
}

// Error carries one kind plus a human readable message. It wraps the
// underlying cause so callers can still errors.Is/As through it.
type Error struct {
	Kind  ErrKind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a classified engine error.
func NewError(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf extracts the kind from any error returned out of this
// package. Unclassified errors report KindNetworkError, the least
// surprising default for a solver that mostly talks to the network.
func KindOf(err error) ErrKind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetworkError
}

// MessageOf returns the message for the boundary without the kind
// prefix duplicated.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
		}
		return e.Msg
	}
	return err.Error()
}
