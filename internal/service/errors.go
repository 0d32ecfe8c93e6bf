package service

import (
	"errors"
	"fmt"

	"storefront-engine/internal/repository"
)

// Kind classifies a business failure. Handlers map kinds onto HTTP statuses.
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindIllegalTransition      Kind = "illegal_transition"
	KindInsufficientStock      Kind = "insufficient_stock"
	KindCouponInvalid          Kind = "coupon_invalid"
	KindDuplicateReturnRequest Kind = "duplicate_return_request"
	KindOrderNotDelivered      Kind = "order_not_delivered"
	KindNotCancellable         Kind = "not_cancellable"
	KindNotFound               Kind = "not_found"
	KindInsufficientPoints     Kind = "insufficient_points"
	KindPaymentGateway         Kind = "payment_gateway"
	KindConflict               Kind = "conflict"
	KindForbidden              Kind = "forbidden"
)

// Error carries a kind and a user facing message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInsufficientStock) works on every instance.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation             = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrIllegalTransition      = &Error{Kind: KindIllegalTransition, Message: "illegal status transition"}
	ErrInsufficientStock      = &Error{Kind: KindInsufficientStock, Message: "this item just sold out"}
	ErrCouponInvalid          = &Error{Kind: KindCouponInvalid, Message: "coupon is not valid"}
	ErrDuplicateReturnRequest = &Error{Kind: KindDuplicateReturnRequest, Message: "a request for this item is already in progress"}
	ErrOrderNotDelivered      = &Error{Kind: KindOrderNotDelivered, Message: "order has not been delivered"}
	ErrNotCancellable         = &Error{Kind: KindNotCancellable, Message: "order can no longer be cancelled"}
	ErrNotFound               = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientPoints     = &Error{Kind: KindInsufficientPoints, Message: "not enough loyalty points"}
	ErrPaymentGateway         = &Error{Kind: KindPaymentGateway, Message: "payment gateway unavailable"}
	ErrConflict               = &Error{Kind: KindConflict, Message: "the record was changed concurrently, please retry"}
	ErrForbidden              = &Error{Kind: KindForbidden, Message: "forbidden"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user facing message of a service error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// notFound converts repository.ErrNotFound into the service kind and passes everything else through.
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "%s not found", what)
	}
	return err
}
