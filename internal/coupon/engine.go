package coupon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Repository provides coupon lookup and usage bookkeeping.
type Repository interface {
	// FindByCode looks a coupon up by its normalized code. Soft-deleted coupons are not returned.
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	// RecordUsage appends customerID to used_by and increments used_count in one write.
	RecordUsage(ctx context.Context, couponID, customerID string) error
}

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNotFound     Reason = "not_found"
	ReasonInactive     Reason = "inactive"
	ReasonExpired      Reason = "expired"
	ReasonNotStarted   Reason = "not_started"
	ReasonMinimumOrder Reason = "minimum_order"
	ReasonUsageLimit   Reason = "usage_limit"
	ReasonPerUserLimit Reason = "per_user_limit"
)

// Result is the outcome of a validation. Rule failures are reported here, never as errors.
type Result struct {
	Valid    bool
	Coupon   *domain.Coupon
	Discount decimal.Decimal
	Reason   Reason
	Message  string
}

type Engine struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	sfg    singleflight.Group // concurrent checkouts often validate the same code
}

func NewEngine(repo Repository, logger *slog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Validate runs the coupon rules in order and stops at the first failure.
// The returned error is non-nil only when the coupon could not be read.
func (e *Engine) Validate(ctx context.Context, code string, subtotal decimal.Decimal, customerID string) (Result, error) {
	normalized := domain.NormalizeCode(code)
	if normalized == "" {
		return invalid(ReasonNotFound, "Invalid coupon code"), nil
	}

	c, err := e.lookup(ctx, normalized)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return invalid(ReasonNotFound, "Invalid coupon code"), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to load coupon %s: %w", normalized, err)
	}

	if c.Status != domain.CouponActive {
		return invalid(ReasonInactive, "Invalid coupon code"), nil
	}

	now := e.now()
	if c.ExpiryDate != nil && c.ExpiryDate.Before(now) {
		return invalid(ReasonExpired, "This coupon has expired"), nil
	}
	if c.StartDate != nil && c.StartDate.After(now) {
		return invalid(ReasonNotStarted, "This coupon is not active yet"), nil
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return invalid(ReasonMinimumOrder,
			fmt.Sprintf("Minimum order amount of %s required", c.MinOrderAmount.StringFixed(2))), nil
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return invalid(ReasonUsageLimit, "This coupon has reached its usage limit"), nil
	}
	if c.UsesBy(customerID) >= c.EffectivePerUserLimit() {
		return invalid(ReasonPerUserLimit, "You have already used this coupon"), nil
	}

	discount := Discount(c, subtotal)
	return Result{
		Valid:    true,
		Coupon:   c,
		Discount: discount,
		Message:  fmt.Sprintf("Coupon applied: %s off", discount.StringFixed(2)),
	}, nil
}

// Discount computes the coupon's discount for subtotal, rounded to 2 decimal places.
// Fixed discounts are returned as-is, even when they exceed the subtotal.
func Discount(c *domain.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case domain.DiscountPercentage:
		d = subtotal.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		if c.MaxDiscount.Valid && d.GreaterThan(c.MaxDiscount.Decimal) {
			d = c.MaxDiscount.Decimal
		}
	case domain.DiscountFixed:
		d = c.DiscountValue
	default:
		d = decimal.Zero
	}
	return d.Round(2)
}

// RecordUsage marks the coupon as used by customerID. It has no idempotency guard:
// callers invoke it once per order that used the coupon.
func (e *Engine) RecordUsage(ctx context.Context, couponID, customerID string) error {
	if err := e.repo.RecordUsage(ctx, couponID, customerID); err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	e.logger.InfoContext(ctx, "coupon usage recorded", "coupon_id", couponID, "customer_id", customerID)
	return nil
}

func (e *Engine) lookup(ctx context.Context, code string) (*domain.Coupon, error) {
	v, err, _ := e.sfg.Do(code, func() (interface{}, error) {
		return e.repo.FindByCode(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	// shared result; callers must not see each other's mutations
	c := *v.(*domain.Coupon)
	c.UsedBy = append([]string(nil), c.UsedBy...)
	return &c, nil
}

func invalid(reason Reason, message string) Result {
	return Result{Reason: reason, Message: message}
}
