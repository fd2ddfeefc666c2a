package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
)

var (
	ErrAuthRequired = errors.New("sign in to check out")
	ErrEmptyCart    = errors.New("cart is empty, nothing to checkout")
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*domain.Order, error)
}

// Cart is the session cart being checked out.
type Cart interface {
	Identity() domain.Identity
	Snapshot() cart.Snapshot
	// Deduct removes the given quantities, leaving anything added since.
	Deduct(items []domain.CartItem) error
}

type Request struct {
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	IdempotencyKey  string
}

type Service struct {
	orders  OrderCreator
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(orders OrderCreator, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orders, timeout: timeout, logger: logger}
}

// Checkout turns the current cart into an order and, once the order is stored,
// takes the ordered lines out of the cart. Items added while the order was being
// placed stay. Nothing is removed when order creation fails.
func (s *Service) Checkout(ctx context.Context, c Cart, req Request) (*domain.Order, error) {
	identity := c.Identity()
	if !identity.Authenticated {
		return nil, ErrAuthRequired
	}

	snapshot := c.Snapshot()
	if len(snapshot.Items) == 0 {
		return nil, ErrEmptyCart
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	o, err := s.orders.CreateOrder(ctx, order.CreateOrderRequest{
		CustomerID:      identity.ID,
		Items:           snapshot.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout failed: %w", err)
	}

	if err := c.Deduct(snapshot.Items); err != nil {
		s.logger.WarnContext(ctx, "failed to remove ordered items from cart",
			"order_id", o.ID, "customer_id", identity.ID, "error", err)
	}
	return o, nil
}
