package order

import (
	"errors"
	"fmt"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/coupon"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

var (
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidOrder      = errors.New("invalid order request")
	ErrPermissionDenied  = errors.New("actor is not allowed to change order status")
	ErrIllegalTransition = errors.New("illegal transition of order status")
	ErrUnknownStatus     = errors.New("unknown order status")
	ErrCouponRejected    = errors.New("coupon rejected")
	ErrIdempotencyKey    = errors.New("idempotency key belongs to another customer")
)

// TransitionError reports a (from, to) pair missing from the transition table.
type TransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("order is %s and can no longer change status", e.From)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// CouponError carries the validation result of a coupon that failed at checkout.
type CouponError struct {
	Reason  coupon.Reason
	Message string
}

func (e *CouponError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Message)
}

func (e *CouponError) Unwrap() error {
	return ErrCouponRejected
}
