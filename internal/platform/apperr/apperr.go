// Package apperr defines the recoverable error taxonomy shared by every
// domain service. Handlers branch on the Kind, so services must never
// collapse these into generic errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a recoverable service error.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindPaymentRequired        Kind = "payment_required"
	KindInsufficientCredit     Kind = "insufficient_credit"
	KindAlreadyPaid            Kind = "already_paid"
	KindPaymentFailed          Kind = "payment_failed"
	KindNotFound               Kind = "not_found"
	KindForbidden              Kind = "forbidden"
	KindConflict               Kind = "conflict"
)

// Error is a kinded error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes two apperr values match when their kinds match, so callers can
// test with errors.Is(err, apperr.AlreadyPaid("")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, format, args...)
}

func InvalidStateTransition(current, attempted string) *Error {
	return newf(KindInvalidStateTransition, "cannot transition from %s to %s", current, attempted)
}

func PaymentRequired(format string, args ...interface{}) *Error {
	return newf(KindPaymentRequired, format, args...)
}

func InsufficientCredit(format string, args ...interface{}) *Error {
	return newf(KindInsufficientCredit, format, args...)
}

func AlreadyPaid(format string, args ...interface{}) *Error {
	return newf(KindAlreadyPaid, format, args...)
}

// PaymentFailed carries the provider-side cause so callers can log and
// decide whether to retry at their level.
func PaymentFailed(cause error, format string, args ...interface{}) *Error {
	e := newf(KindPaymentFailed, format, args...)
	e.cause = cause
	return e
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(KindForbidden, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, format, args...)
}

// KindOf returns the kind of err, or "" when err is not an apperr.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is an apperr of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var httpStatus = map[Kind]int{
	KindValidation:             http.StatusBadRequest,
	KindInvalidStateTransition: http.StatusConflict,
	KindPaymentRequired:        http.StatusPaymentRequired,
	KindInsufficientCredit:     http.StatusPaymentRequired,
	KindAlreadyPaid:            http.StatusConflict,
	KindPaymentFailed:          http.StatusPaymentRequired,
	KindNotFound:               http.StatusNotFound,
	KindForbidden:              http.StatusForbidden,
	KindConflict:               http.StatusConflict,
}

// ToHTTP converts a service error into an echo HTTP error. The error kind is
// included in the payload so API clients can branch on it (e.g. "locked"
// vs. "missing"). Non-apperr errors become plain 500s.
func ToHTTP(err error) *echo.HTTPError {
	var e *Error
	if errors.As(err, &e) {
		status, ok := httpStatus[e.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return echo.NewHTTPError(status, map[string]string{
			"kind":    string(e.Kind),
			"message": e.Message,
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
