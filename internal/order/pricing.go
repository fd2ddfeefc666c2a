package order

import (
	"strings"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

type Pricing struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingRate      decimal.Decimal
	// PayOnDeliveryMethods start with a pending payment; everything else is processing.
	PayOnDeliveryMethods []string
}

func DefaultPricing() Pricing {
	return Pricing{
		FreeShippingThreshold: decimal.NewFromInt(5000),
		FlatShippingRate:      decimal.NewFromInt(350),
		PayOnDeliveryMethods:  []string{"cod"},
	}
}

func (p Pricing) ShippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return p.FlatShippingRate
}

func (p Pricing) PayOnDelivery(method string) bool {
	for _, m := range p.PayOnDeliveryMethods {
		if strings.EqualFold(strings.TrimSpace(method), m) {
			return true
		}
	}
	return false
}

func (p Pricing) InitialPaymentStatus(method string) domain.PaymentStatus {
	if p.PayOnDelivery(method) {
		return domain.PaymentStatusPending
	}
	return domain.PaymentStatusProcessing
}

// Totals holds the money fields of an order.
type Totals struct {
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

// Price computes order totals. The discount is clamped to the subtotal so the
// total never drops below the shipping cost.
func (p Pricing) Price(items []domain.CartItem, discount decimal.Decimal) Totals {
	subtotal := domain.Subtotal(items).Round(2)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	shipping := p.ShippingFor(subtotal)
	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shipping,
		Discount:     discount,
		Total:        subtotal.Add(shipping).Sub(discount).Round(2),
	}
}
