package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/coupon"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// CouponValidator is the part of the coupon engine order creation depends on.
type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, customerID string) (coupon.Result, error)
	RecordUsage(ctx context.Context, couponID, customerID string) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order *domain.Order) error
}

type Lifecycle struct {
	repo      repository.OrderRepository
	coupons   CouponValidator
	publisher EventPublisher
	pricing   Pricing
	logger    *slog.Logger
	now       func() time.Time
	newID     func(time.Time) string
}

// NewLifecycle wires order creation and status changes. publisher may be nil.
func NewLifecycle(repo repository.OrderRepository, coupons CouponValidator, publisher EventPublisher, pricing Pricing, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		repo:      repo,
		coupons:   coupons,
		publisher: publisher,
		pricing:   pricing,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newOrderID,
	}
}

type CreateOrderRequest struct {
	CustomerID      string
	Items           []domain.CartItem
	ShippingAddress domain.ShippingAddress
	PaymentMethod   string
	CouponCode      string
	// IdempotencyKey makes retried checkouts return the order created first.
	IdempotencyKey string
}

type TransitionRequest struct {
	Status         domain.OrderStatus
	TrackingNumber string
}

// CreateOrder prices the snapshot, persists the order and records coupon usage
// once. The order is returned only after it has been stored.
func (l *Lifecycle) CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := l.repo.GetOrderByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
		if err == nil {
			if existing.CustomerID != req.CustomerID {
				return nil, ErrIdempotencyKey
			}
			l.logger.InfoContext(ctx, "duplicate checkout request",
				"idempotency_key", req.IdempotencyKey, "order_id", existing.ID)
			return existing, nil
		}
		if !errors.Is(err, repository.ErrOrderNotFound) {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	items := make([]domain.CartItem, len(req.Items))
	for i, item := range domain.CloneItems(req.Items) {
		items[i] = item.Sanitize()
	}
	subtotal := domain.Subtotal(items).Round(2)

	var applied *domain.Coupon
	discount := decimal.Zero
	if strings.TrimSpace(req.CouponCode) != "" {
		result, err := l.coupons.Validate(ctx, req.CouponCode, subtotal, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to validate coupon: %w", err)
		}
		if !result.Valid {
			return nil, &CouponError{Reason: result.Reason, Message: result.Message}
		}
		applied = result.Coupon
		discount = result.Discount
	}

	totals := l.pricing.Price(items, discount)
	now := l.now()
	order := &domain.Order{
		ID:              l.newID(now),
		CustomerID:      req.CustomerID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.ShippingCost,
		Discount:        totals.Discount,
		TotalAmount:     totals.Total,
		PaymentMethod:   strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		PaymentStatus:   l.pricing.InitialPaymentStatus(req.PaymentMethod),
		Status:          domain.OrderStatusPending,
		Timeline:        []domain.TimelineEvent{{Description: "Order placed", Timestamp: now}},
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if applied != nil {
		order.CouponCode = applied.Code
	}

	if err := l.repo.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) && req.IdempotencyKey != "" {
			// a concurrent retry with the same key won
			existing, getErr := l.repo.GetOrderByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
			if getErr == nil && existing.CustomerID == req.CustomerID {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}

	l.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"customer_id", order.CustomerID,
		"total", order.TotalAmount.StringFixed(2),
		"coupon", order.CouponCode,
	)

	if applied != nil {
		if err := l.coupons.RecordUsage(ctx, applied.ID, req.CustomerID); err != nil {
			l.logger.ErrorContext(ctx, "failed to record coupon usage",
				"order_id", order.ID, "coupon_id", applied.ID, "error", err)
		}
	}

	l.publish(ctx, EventOrderCreated, order)
	return order, nil
}

// Transition moves an order along the transition table. Only privileged actors may call it.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, req TransitionRequest, actor domain.Actor) (*domain.Order, error) {
	if !actor.Privileged() {
		return nil, fmt.Errorf("%w: role %q", ErrPermissionDenied, actor.Role)
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, req.Status)
	}

	current, err := l.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionTo(current.Status, req.Status) {
		return nil, &TransitionError{From: current.Status, To: req.Status}
	}

	update := repository.StatusUpdate{
		From: current.Status,
		To:   req.Status,
		Event: domain.TimelineEvent{
			Description: describe(req.Status, req.TrackingNumber),
			Timestamp:   l.now(),
		},
	}
	if tracking := strings.TrimSpace(req.TrackingNumber); tracking != "" {
		update.TrackingNumber = &tracking
	}
	if req.Status == domain.OrderStatusDelivered && l.pricing.PayOnDelivery(current.PaymentMethod) {
		completed := domain.PaymentStatusCompleted
		update.PaymentStatus = &completed
	}

	updated, err := l.repo.UpdateOrderStatus(ctx, orderID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", orderID, err)
	}

	l.logger.InfoContext(ctx, "order status changed",
		"order_id", orderID,
		"from", current.Status,
		"to", req.Status,
		"actor_id", actor.ID,
		"actor_role", actor.Role,
	)
	l.publish(ctx, EventOrderStatusChanged, updated)
	return updated, nil
}

// GetOrder returns the order if actor owns it or is privileged. Other customers'
// orders are reported as not found.
func (l *Lifecycle) GetOrder(ctx context.Context, orderID string, actor domain.Actor) (*domain.Order, error) {
	o, err := l.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Privileged() && o.CustomerID != actor.ID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

// ListOrders lists customerID's orders, newest first.
func (l *Lifecycle) ListOrders(ctx context.Context, customerID string, actor domain.Actor) ([]*domain.Order, error) {
	if !actor.Privileged() && customerID != actor.ID {
		return nil, fmt.Errorf("%w: cannot list another customer's orders", ErrPermissionDenied)
	}
	return l.repo.ListOrdersByCustomer(ctx, customerID)
}

func (l *Lifecycle) publish(ctx context.Context, eventType string, o *domain.Order) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishOrderEvent(ctx, eventType, o); err != nil {
		l.logger.WarnContext(ctx, "failed to publish order event",
			"event_type", eventType, "order_id", o.ID, "error", err)
	}
}

func validateCreate(req CreateOrderRequest) error {
	if req.CustomerID == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidOrder)
	}
	if len(req.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidOrder, item.ProductID, item.Quantity)
		}
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return fmt.Errorf("%w: payment method is required", ErrInvalidOrder)
	}
	return nil
}

func describe(status domain.OrderStatus, tracking string) string {
	switch status {
	case domain.OrderStatusConfirmed:
		return "Order confirmed"
	case domain.OrderStatusProcessing:
		return "Order is being processed"
	case domain.OrderStatusShipped:
		if tracking != "" {
			return "Order shipped, tracking number " + tracking
		}
		return "Order shipped"
	case domain.OrderStatusDelivered:
		return "Order delivered"
	case domain.OrderStatusCancelled:
		return "Order cancelled"
	default:
		return "Order status changed to " + status.String()
	}
}

// newOrderID returns ids like ORD-20260301-1A2B3C4D.
func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
