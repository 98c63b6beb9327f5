package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input. Nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates a lot cannot cover the requested meters.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverpaymentRejected indicates a payment larger than the open balance.
	ErrOverpaymentRejected = errors.New("overpayment rejected")
	// ErrIllegalTransition indicates an order status change that is not permitted.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrConflict indicates the request collides with current state.
	ErrConflict = errors.New("conflict")
)

// Validationf wraps ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ErrorKind returns a short label for the taxonomy bucket err belongs to.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrOverpaymentRejected):
		return "overpayment"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}

// UserSafeMessage strips internal detail from unexpected errors.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if ErrorKind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
