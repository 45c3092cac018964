package domain

import (
	"errors"
	"fmt"
)

// ErrKind is a typed error discriminant components branch on, per spec §7.
type ErrKind string

const (
	ErrMissionNotFound   ErrKind = "mission_not_found"
	ErrMissionUnknown    ErrKind = "mission_unknown"
	ErrInvalidTransition ErrKind = "invalid_transition"
	ErrQueueBusy         ErrKind = "queue_busy"
	ErrStorage           ErrKind = "storage"
	ErrNotFound          ErrKind = "not_found"
	ErrCancelled         ErrKind = "cancelled"
	ErrCapacity          ErrKind = "capacity"
	ErrProtocol          ErrKind = "protocol"
)

// Error is the typed error every core component returns at its boundary. It
// wraps an optional underlying cause while exposing a stable Kind for
// callers to branch on with errors.As.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, &Error{Kind: X}) by comparing Kind only.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// NewError constructs a typed Error with no wrapped cause.
func NewError(kind ErrKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError constructs a typed Error wrapping an underlying cause.
func WrapError(kind ErrKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the ErrKind of err if it is (or wraps) a *Error, and
// reports whether one was found.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind ErrKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
