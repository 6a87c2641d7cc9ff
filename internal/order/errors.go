package order

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so callers can map each class to a
// stable transport status. Busy is deliberately distinct from Conflict:
// a busy print is safe to retry, a conflicting transition is not.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidInput
	KindInvalidState
	KindConflict
	KindForbidden
	KindBusy
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindBusy:
		return "busy"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

func InvalidInputError(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

func InvalidStateError(msg string) *Error {
	return &Error{Kind: KindInvalidState, Msg: msg}
}

func ConflictError(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func ForbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func BusyError(msg string) *Error {
	return &Error{Kind: KindBusy, Msg: msg}
}

func UnavailableError(msg string, err error) *Error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: err}
}

// KindOf extracts the classification from err, or KindUnknown when err
// did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
