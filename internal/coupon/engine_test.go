package coupon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	coupons  map[string]*domain.Coupon
	err      error
	recorded []string
}

func (m *mockRepository) FindByCode(_ context.Context, code string) (*domain.Coupon, error) {
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return c, nil
}

func (m *mockRepository) RecordUsage(_ context.Context, couponID, customerID string) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, couponID+":"+customerID)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(coupons ...*domain.Coupon) (*Engine, *mockRepository) {
	repo := &mockRepository{coupons: map[string]*domain.Coupon{}}
	for _, c := range coupons {
		repo.coupons[c.Code] = c
	}
	e := NewEngine(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.now = func() time.Time { return fixedNow }
	return e, repo
}

func save10() *domain.Coupon {
	return &domain.Coupon{
		ID:             "c-1",
		Code:           "SAVE10",
		DiscountType:   domain.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(10),
		MinOrderAmount: decimal.NewFromInt(1000),
		PerUserLimit:   1,
		Status:         domain.CouponActive,
	}
}

func TestValidate_PercentageDiscount(t *testing.T) {
	e, _ := newTestEngine(save10())

	res, err := e.Validate(context.Background(), "save10", decimal.NewFromInt(2000), "user-1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, decimal.NewFromInt(200).Equal(res.Discount), "got %s", res.Discount)
	require.NotNil(t, res.Coupon)
	assert.Equal(t, "SAVE10", res.Coupon.Code)
}

func TestValidate_BelowMinimumOrder(t *testing.T) {
	e, _ := newTestEngine(save10())

	res, err := e.Validate(context.Background(), "SAVE10", decimal.NewFromInt(500), "user-1")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonMinimumOrder, res.Reason)
	assert.Contains(t, res.Message, "Minimum order amount")
	assert.Contains(t, res.Message, "1000.00")
}

func TestValidate_UsageLimitReached(t *testing.T) {
	c := save10()
	limit := 1
	c.UsageLimit = &limit
	c.UsedCount = 1
	e, _ := newTestEngine(c)

	for _, subtotal := range []int64{0, 2000, 1_000_000} {
		res, err := e.Validate(context.Background(), "SAVE10", decimal.NewFromInt(subtotal), "user-1")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		if subtotal >= 1000 {
			assert.Equal(t, ReasonUsageLimit, res.Reason)
		}
	}
}

func TestValidate_RuleOrder(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)
	limit := 5

	tests := []struct {
		name   string
		mutate func(c *domain.Coupon)
		code   string
		user   string
		reason Reason
	}{
		{name: "unknown code", mutate: func(c *domain.Coupon) {}, code: "NOPE", reason: ReasonNotFound},
		{name: "empty code", mutate: func(c *domain.Coupon) {}, code: "  ", reason: ReasonNotFound},
		{name: "inactive", mutate: func(c *domain.Coupon) { c.Status = domain.CouponInactive }, reason: ReasonInactive},
		{name: "expired beats not started", mutate: func(c *domain.Coupon) {
			c.ExpiryDate = &past
			c.StartDate = &future
		}, reason: ReasonExpired},
		{name: "not started", mutate: func(c *domain.Coupon) { c.StartDate = &future }, reason: ReasonNotStarted},
		{name: "per user limit", mutate: func(c *domain.Coupon) {
			c.UsageLimit = &limit
			c.UsedCount = 1
			c.UsedBy = []string{"user-1"}
		}, user: "user-1", reason: ReasonPerUserLimit},
		{name: "other user still allowed", mutate: func(c *domain.Coupon) {
			c.UsedBy = []string{"user-1"}
		}, user: "user-2", reason: ReasonNone},
		{name: "per user limit counts duplicates", mutate: func(c *domain.Coupon) {
			c.PerUserLimit = 2
			c.UsedBy = []string{"user-1", "user-1"}
		}, user: "user-1", reason: ReasonPerUserLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := save10()
			tt.mutate(c)
			e, _ := newTestEngine(c)
			code := tt.code
			if code == "" {
				code = "SAVE10"
			}
			user := tt.user
			if user == "" {
				user = "user-9"
			}

			res, err := e.Validate(context.Background(), code, decimal.NewFromInt(2000), user)
			require.NoError(t, err)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, tt.reason == ReasonNone, res.Valid)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestValidate_RepositoryError(t *testing.T) {
	e, repo := newTestEngine()
	repo.err = errors.New("connection refused")

	_, err := e.Validate(context.Background(), "SAVE10", decimal.NewFromInt(2000), "user-1")
	assert.ErrorContains(t, err, "connection refused")
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   domain.Coupon
		subtotal string
		want     string
	}{
		{
			name:     "percentage clamped to max",
			coupon:   domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: decimal.NewFromInt(50), MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(300))},
			subtotal: "2000",
			want:     "300",
		},
		{
			name:     "percentage under max",
			coupon:   domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), MaxDiscount: decimal.NewNullDecimal(decimal.NewFromInt(300))},
			subtotal: "2000",
			want:     "200",
		},
		{
			name:     "percentage rounds half away from zero",
			coupon:   domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: decimal.RequireFromString("12.5")},
			subtotal: "99.9",
			want:     "12.49",
		},
		{
			name:     "percentage rounds up",
			coupon:   domain.Coupon{DiscountType: domain.DiscountPercentage, DiscountValue: decimal.NewFromInt(15)},
			subtotal: "33.3",
			want:     "5",
		},
		{
			name:     "fixed is not clamped to subtotal",
			coupon:   domain.Coupon{DiscountType: domain.DiscountFixed, DiscountValue: decimal.NewFromInt(500)},
			subtotal: "120",
			want:     "500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discount(&tt.coupon, decimal.RequireFromString(tt.subtotal))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestRecordUsage(t *testing.T) {
	e, repo := newTestEngine(save10())

	require.NoError(t, e.RecordUsage(context.Background(), "c-1", "user-1"))
	assert.Equal(t, []string{"c-1:user-1"}, repo.recorded)

	repo.err = errors.New("boom")
	assert.Error(t, e.RecordUsage(context.Background(), "c-1", "user-1"))
}

func TestValidate_DoesNotLeakMutations(t *testing.T) {
	c := save10()
	c.UsedBy = []string{"user-2"}
	e, repo := newTestEngine(c)

	res, err := e.Validate(context.Background(), "SAVE10", decimal.NewFromInt(2000), "user-1")
	require.NoError(t, err)
	res.Coupon.UsedBy[0] = "tampered"
	assert.Equal(t, "user-2", repo.coupons["SAVE10"].UsedBy[0])
}
