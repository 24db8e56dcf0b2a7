package world

import (
	"errors"
	"fmt"
)

// ErrorKind classifies operation failures for transport mapping. Every error
// returned by an operation is an *Error carrying exactly one kind.
type ErrorKind uint8

const (
	// KindValidation rejects malformed or out-of-range input.
	KindValidation ErrorKind = iota + 1
	// KindNotFound reports a missing entity.
	KindNotFound
	// KindPermission rejects a caller lacking authority for the operation.
	KindPermission
	// KindCapacity reports a full container or zone.
	KindCapacity
	// KindState rejects an operation invalid in the entity's current state.
	KindState
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindCapacity:
		return "capacity"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is the only error type operations return.
type Error struct {
	Kind ErrorKind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Is lets errors.Is match the kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.msg == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrPermission = &Error{Kind: KindPermission}
	ErrCapacity   = &Error{Kind: KindCapacity}
	ErrState      = &Error{Kind: KindState}
)

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, msg: fmt.Sprintf(format, args...)}
}

func Permissionf(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, msg: fmt.Sprintf(format, args...)}
}

func Capacityf(format string, args ...any) *Error {
	return &Error{Kind: KindCapacity, msg: fmt.Sprintf(format, args...)}
}

func Statef(format string, args ...any) *Error {
	return &Error{Kind: KindState, msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not a world error.
func KindOf(err error) ErrorKind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return 0
}
