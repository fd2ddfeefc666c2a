package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

const orderColumns = `id, customer_id, items, shipping_address, subtotal, shipping_cost, discount, total_amount,
	coupon_code, payment_method, payment_status, order_status, timeline, tracking_number, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}
	timelineJSON, err := json.Marshal(order.Timeline)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	query := `INSERT INTO orders (id, customer_id, items, shipping_address, subtotal, shipping_cost, discount,
	          total_amount, coupon_code, payment_method, payment_status, order_status, timeline, tracking_number,
	          idempotency_key, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.CustomerID,
		itemsJSON,
		addressJSON,
		order.Subtotal,
		order.ShippingCost,
		order.Discount,
		order.TotalAmount,
		nullString(order.CouponCode),
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
		timelineJSON,
		order.TrackingNumber,
		nullString(order.IdempotencyKey),
		order.CreatedAt)
	if insertErr != nil {
		if isUniqueViolation(insertErr) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	return nil
}

func (r *PostgresRepository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOrder(ctx, query, id)
}

func (r *PostgresRepository) GetOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 AND idempotency_key = $2`
	return r.getOrder(ctx, query, customerID, key)
}

func (r *PostgresRepository) getOrder(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

func (r *PostgresRepository) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("query orders by customer id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

// UpdateOrderStatus is a compare-and-set on order_status. The timeline only ever grows.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id string, update StatusUpdate) (*domain.Order, error) {
	eventJSON, err := json.Marshal([]domain.TimelineEvent{update.Event})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal timeline event: %w", err)
	}

	var payment *string
	if update.PaymentStatus != nil {
		s := string(*update.PaymentStatus)
		payment = &s
	}

	query := `UPDATE orders
	          SET order_status = $1,
	              timeline = timeline || $2::jsonb,
	              tracking_number = COALESCE($3, tracking_number),
	              payment_status = COALESCE($4, payment_status),
	              updated_at = $5
	          WHERE id = $6 AND order_status = $7
	          RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query,
		update.To,
		eventJSON,
		update.TrackingNumber,
		payment,
		update.Event.Timestamp,
		id,
		update.From))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}
	return nil, ErrStatusConflict
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, addressJSON, timelineJSON []byte
	var couponCode, tracking sql.NullString

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&itemsJSON,
		&addressJSON,
		&order.Subtotal,
		&order.ShippingCost,
		&order.Discount,
		&order.TotalAmount,
		&couponCode,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.Status,
		&timelineJSON,
		&tracking,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(timelineJSON, &order.Timeline); err != nil {
		return nil, fmt.Errorf("unmarshal timeline: %w", err)
	}
	order.CouponCode = couponCode.String
	if tracking.Valid {
		order.TrackingNumber = &tracking.String
	}

	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
