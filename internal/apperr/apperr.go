// Package apperr carries the error kinds surfaced by the settlement core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindBadRequest Kind = "bad_request"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal_error"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func NotFound(msg string) *Error   { return New(KindNotFound, msg) }
func BadRequest(msg string) *Error { return New(KindBadRequest, msg) }
func Forbidden(msg string) *Error  { return New(KindForbidden, msg) }
func Conflict(msg string) *Error   { return New(KindConflict, msg) }
func Internal(msg string, cause error) *Error {
	return Wrap(KindInternal, msg, cause)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// Retryable reports whether the caller may safely retry the whole unit of work.
func Retryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindConflict && errors.Is(e.Cause, ErrSerialization)
}

var (
	ErrSerialization       = errors.New("concurrent update, retry")
	ErrInsufficientBalance = BadRequest("insufficient balance")
)
