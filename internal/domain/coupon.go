package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type CouponStatus string

const (
	CouponActive   CouponStatus = "active"
	CouponInactive CouponStatus = "inactive"
)

const DefaultPerUserLimit = 1

type Coupon struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MinOrderAmount decimal.Decimal
	MaxDiscount    decimal.NullDecimal
	UsageLimit     *int
	PerUserLimit   int
	UsedCount      int
	UsedBy         []string
	StartDate      *time.Time
	ExpiryDate     *time.Time
	Status         CouponStatus
	DeletedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeCode is the stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// UsesBy counts occurrences of customerID in UsedBy. Linear in len(UsedBy).
func (c *Coupon) UsesBy(customerID string) int {
	n := 0
	for _, id := range c.UsedBy {
		if id == customerID {
			n++
		}
	}
	return n
}

func (c *Coupon) EffectivePerUserLimit() int {
	if c.PerUserLimit <= 0 {
		return DefaultPerUserLimit
	}
	return c.PerUserLimit
}
