package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the caller
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindInternal      ErrorKind = "internal"
)

var (
	ErrInvalidQuantity     = errors.New("quantity must be a positive integer")
	ErrSelfPurchase        = errors.New("sellers cannot buy their own listing")
	ErrListingNotFound     = errors.New("listing not found")
	ErrListingUnavailable  = errors.New("listing is not available")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotFound       = errors.New("order not found")
	ErrNotOrderParty       = errors.New("actor is not the buyer or seller of this order")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrActorNotAllowed     = errors.New("actor not allowed to perform this transition")
	ErrCategoryRequired    = errors.New("category_id is required")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrVoucherNotFound     = errors.New("voucher not found")
	ErrVoucherIneligible   = errors.New("voucher cannot be applied")
	ErrVoucherExhausted    = errors.New("voucher usage limit reached")
	ErrVoucherRedeemed     = errors.New("voucher already redeemed for this listing")
	ErrVoucherCodeTaken    = errors.New("voucher code already exists")
	ErrRequestInFlight     = errors.New("a request with this idempotency key is still being processed")
	ErrInvalidVoucherInput = errors.New("invalid voucher definition")
)

// Error is the error type returned by the services. It carries the kind used
// to pick a response and optional structured details for the caller.
type Error struct {
	Kind    ErrorKind
	Err     error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err; errors that did not come from a service are internal
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// DetailsOf returns the structured details attached to err, if any
func DetailsOf(err error) map[string]interface{} {
	var se *Error
	if errors.As(err, &se) {
		return se.Details
	}
	return nil
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func validationError(err error, format string, args ...interface{}) *Error {
	return newError(KindValidation, wrapf(err, format, args...))
}

func authorizationError(err error, format string, args ...interface{}) *Error {
	return newError(KindAuthorization, wrapf(err, format, args...))
}

func notFoundError(err error, format string, args ...interface{}) *Error {
	return newError(KindNotFound, wrapf(err, format, args...))
}

func conflictError(err error, format string, args ...interface{}) *Error {
	return newError(KindConflict, wrapf(err, format, args...))
}

func internalError(op string, err error) *Error {
	return newError(KindInternal, fmt.Errorf("%s: %w", op, err))
}

func wrapf(err error, format string, args ...interface{}) error {
	if format == "" {
		return err
	}
	return fmt.Errorf("%w: "+format, append([]interface{}{err}, args...)...)
}

func (e *Error) with(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// asServiceError passes service errors through and turns anything else into
// an internal error for op
func asServiceError(op string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return internalError(op, err)
}
