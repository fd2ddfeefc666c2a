package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const couponColumns = `id, code, discount_type, discount_value, min_order_amount, max_discount, usage_limit,
	per_user_limit, used_count, used_by, start_date, expiry_date, status, deleted_at, created_at, updated_at`

func (r *PostgresRepository) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Code = domain.NormalizeCode(c.Code)
	if c.PerUserLimit <= 0 {
		c.PerUserLimit = domain.DefaultPerUserLimit
	}
	if c.Status == "" {
		c.Status = domain.CouponActive
	}
	if c.UsedBy == nil {
		c.UsedBy = []string{}
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	var usageLimit sql.NullInt64
	if c.UsageLimit != nil {
		usageLimit = sql.NullInt64{Int64: int64(*c.UsageLimit), Valid: true}
	}

	query := `INSERT INTO coupons (` + couponColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID,
		c.Code,
		c.DiscountType,
		c.DiscountValue,
		c.MinOrderAmount,
		c.MaxDiscount,
		usageLimit,
		c.PerUserLimit,
		c.UsedCount,
		pq.Array(c.UsedBy),
		c.StartDate,
		c.ExpiryDate,
		c.Status,
		c.DeletedAt,
		c.CreatedAt,
		c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCoupon
		}
		return fmt.Errorf("insert coupon: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 AND deleted_at IS NULL`

	var c domain.Coupon
	var usageLimit sql.NullInt64
	var startDate, expiryDate, deletedAt sql.NullTime
	var usedBy pq.StringArray

	err := r.db.QueryRowContext(ctx, query, domain.NormalizeCode(code)).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MinOrderAmount,
		&c.MaxDiscount,
		&usageLimit,
		&c.PerUserLimit,
		&c.UsedCount,
		&usedBy,
		&startDate,
		&expiryDate,
		&c.Status,
		&deletedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query coupon by code: %w", err)
	}

	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	c.UsedBy = []string(usedBy)
	c.StartDate = timePtr(startDate)
	c.ExpiryDate = timePtr(expiryDate)
	c.DeletedAt = timePtr(deletedAt)

	return &c, nil
}

// RecordUsage appends in SQL so concurrent recordings never lose an update.
func (r *PostgresRepository) RecordUsage(ctx context.Context, couponID, customerID string) error {
	query := `UPDATE coupons
	          SET used_count = used_count + 1,
	              used_by = array_append(used_by, $2),
	              updated_at = NOW()
	          WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, couponID, customerID)
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// SoftDeleteCoupon hides the coupon from lookups; orders keep referencing its code.
func (r *PostgresRepository) SoftDeleteCoupon(ctx context.Context, couponID string) error {
	query := `UPDATE coupons SET deleted_at = NOW(), status = $2, updated_at = NOW()
	          WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, couponID, domain.CouponInactive)
	if err != nil {
		return fmt.Errorf("soft delete coupon: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete coupon: %w", err)
	}
	if n == 0 {
		return ErrCouponNotFound
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
