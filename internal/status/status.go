package status

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindNotApproved           Kind = "not_approved"
	KindExpired               Kind = "expired"
	KindInsufficientInventory Kind = "insufficient_inventory"
	KindInactiveUser          Kind = "inactive_user"
	KindForbidden             Kind = "forbidden"
	KindInvalidTransition     Kind = "invalid_transition"
	KindAlreadyPaid           Kind = "already_paid"
	KindVendorFraud           Kind = "vendor_fraud"
	KindInvalidSignature      Kind = "invalid_signature"
	KindInvalidCredential     Kind = "invalid_credential"
	KindValidation            Kind = "validation_error"
	KindPaymentIncomplete     Kind = "payment_incomplete"
	KindInternal              Kind = "internal"
)

// Error is a failure the caller can act on. Two errors are equal under
// errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound              = New(KindNotFound, "entity not found")
	ErrNotApproved           = New(KindNotApproved, "ticket is not approved for booking")
	ErrExpired               = New(KindExpired, "departure is in the past")
	ErrInsufficientInventory = New(KindInsufficientInventory, "not enough tickets available")
	ErrInactiveUser          = New(KindInactiveUser, "user is not active")
	ErrForbidden             = New(KindForbidden, "not authorized")
	ErrInvalidTransition     = New(KindInvalidTransition, "booking status cannot be changed")
	ErrAlreadyPaid           = New(KindAlreadyPaid, "booking already paid")
	ErrVendorFraud           = New(KindVendorFraud, "vendor is flagged as fraud")
	ErrInvalidSignature      = New(KindInvalidSignature, "webhook signature verification failed")
	ErrInvalidCredential     = New(KindInvalidCredential, "invalid or expired credential")
	ErrValidation            = New(KindValidation, "invalid input")
	ErrPaymentIncomplete     = New(KindPaymentIncomplete, "payment not completed")
)

// KindOf reports the kind of err, KindInternal for errors without one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Expected reports whether err is a domain failure rather than an
// infrastructure fault.
func Expected(err error) bool {
	k := KindOf(err)
	return k != KindInternal
}
