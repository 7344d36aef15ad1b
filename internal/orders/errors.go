package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrUnauthorized      = errors.New("caller is not allowed to act on this order")
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrSelfPurchase      = errors.New("cannot order your own meal")
	ErrMealUnavailable   = errors.New("meal is not available")
	ErrInvalidSignature  = errors.New("webhook signature mismatch")

	// ErrConflict surfaces when the guarded update matched no row, i.e. the
	// order changed between read and write despite the row lock. Treated as
	// an internal error; nothing was committed.
	ErrConflict = errors.New("order modified concurrently")
)

// ValidationError is a malformed-input failure. No state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError carries the authoritative current state so callers
// can resynchronize instead of blindly retrying.
type InvalidTransitionError struct {
	OrderID       string
	Action        string
	Status        Status
	PaymentStatus PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s from %s/%s", e.OrderID, e.Action, e.Status, e.PaymentStatus)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
