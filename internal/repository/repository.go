package repository

import (
	"context"
	"errors"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrRevisionConflict = errors.New("cart revision changed concurrently")
	ErrOrderNotFound    = errors.New("order not found")
	ErrDuplicateOrder   = errors.New("customer already has an order with this idempotency key")
	ErrStatusConflict   = errors.New("order status changed concurrently")
	ErrCouponNotFound   = errors.New("coupon not found")
	ErrDuplicateCoupon  = errors.New("coupon code already exists")
)

// CancelFunc stops a push subscription. It does not wait for an in-flight callback to return.
type CancelFunc func()

// CartRepository is the durable cart document store keyed by authenticated user id.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	// SaveCart replaces the whole document.
	SaveCart(ctx context.Context, cart *domain.Cart) error
	// SaveCartIfRevision replaces the document only while its stored revision is still
	// expected, a missing document counting as revision 0. Otherwise ErrRevisionConflict.
	SaveCartIfRevision(ctx context.Context, cart *domain.Cart, expected int64) error
	DeleteCart(ctx context.Context, ownerID string) error
	// WatchCart calls fn with the full document every time it changes.
	WatchCart(ctx context.Context, ownerID string, fn func(*domain.Cart)) (CancelFunc, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	// GetOrderByIdempotencyKey looks a key up within one customer's orders.
	GetOrderByIdempotencyKey(ctx context.Context, customerID, key string) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	// UpdateOrderStatus moves the order from -> to only if it is still in from,
	// appending event to the timeline.
	UpdateOrderStatus(ctx context.Context, id string, update StatusUpdate) (*domain.Order, error)
}

type StatusUpdate struct {
	From           domain.OrderStatus
	To             domain.OrderStatus
	Event          domain.TimelineEvent
	TrackingNumber *string
	PaymentStatus  *domain.PaymentStatus
}

type CouponRepository interface {
	CreateCoupon(ctx context.Context, c *domain.Coupon) error
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	RecordUsage(ctx context.Context, couponID, customerID string) error
	SoftDeleteCoupon(ctx context.Context, couponID string) error
}
