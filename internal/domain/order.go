package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
}

// CanTransitionTo looks the pair up in the transition table. Status ordering plays no part.
func CanTransitionTo(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Progress is the UI completion percentage for a status.
func (s OrderStatus) Progress() int {
	switch s {
	case OrderStatusPending:
		return 5
	case OrderStatusConfirmed:
		return 25
	case OrderStatusProcessing:
		return 50
	case OrderStatusShipped:
		return 75
	case OrderStatusDelivered:
		return 100
	default:
		return 0
	}
}

func (s OrderStatus) String() string {
	return string(s)
}

type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type TimelineEvent struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

type Order struct {
	ID              string          `json:"order_id"`
	CustomerID      string          `json:"customer_id"`
	Items           []CartItem      `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	Discount        decimal.Decimal `json:"discount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          OrderStatus     `json:"order_status"`
	Timeline        []TimelineEvent `json:"timeline"`
	TrackingNumber  *string         `json:"tracking_number,omitempty"`
	IdempotencyKey  string          `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
