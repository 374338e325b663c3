package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it to a status.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrNotFound     = &Error{kind: KindNotFound, code: string(KindNotFound)}
	ErrConflict     = &Error{kind: KindConflict, code: string(KindConflict)}
	ErrValidation   = &Error{kind: KindValidation, code: string(KindValidation)}
	ErrUnauthorized = &Error{kind: KindUnauthorized, code: string(KindUnauthorized)}
	ErrUpstream     = &Error{kind: KindUpstream, code: string(KindUpstream)}
	ErrInternal     = &Error{kind: KindInternal, code: string(KindInternal)}
)

// Error carries a kind, a stable "operation.reason" code, an optional user-facing message and the cause.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

// New builds an error whose code is "<operation>.<reason>".
func New(kind Kind, operation, reason string, cause error) *Error {
	return &Error{
		kind: kind,
		code: fmt.Sprintf("%s.%s", operation, reason),
		err:  cause,
	}
}

// WithMessage attaches the message shown to callers in place of the default for the kind.
func (e *Error) WithMessage(message string) *Error {
	copied := *e
	copied.message = message
	return &copied
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.kind == e.kind
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code returns the "operation.reason" code.
func (e *Error) Code() string {
	return e.code
}

// Message returns the user-facing message, falling back to a generic one for the kind.
func (e *Error) Message() string {
	if e.message != "" {
		return e.message
	}
	return defaultMessage(e.kind)
}

// KindOf reports the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "invalid request"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream service unavailable"
	default:
		return "internal server error"
	}
}
