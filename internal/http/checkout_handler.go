package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/checkout"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/coupon"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

const IdempotencyHeader = "Idempotency-Key"

type CouponValidator interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal, customerID string) (coupon.Result, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, c checkout.Cart, req checkout.Request) (*domain.Order, error)
}

type CheckoutHandler struct {
	sessions Sessions
	coupons  CouponValidator
	checkout CheckoutService
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCheckoutHandler(sessions Sessions, coupons CouponValidator, svc CheckoutService, timeout time.Duration, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		sessions: sessions,
		coupons:  coupons,
		checkout: svc,
		timeout:  timeout,
		logger:   logger,
	}
}

type ValidateCouponRequestDTO struct {
	Code string `json:"code"`
}

type ValidateCouponResponseDTO struct {
	Valid    bool   `json:"valid"`
	Code     string `json:"code,omitempty"`
	Discount string `json:"discount"`
	Subtotal string `json:"subtotal"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

type CheckoutRequestDTO struct {
	ShippingAddress domain.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                 `json:"payment_method"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
}

// POST /api/v1/coupons/validate
func (h *CheckoutHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ValidateCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	subtotal := store.Total().Round(2)
	result, err := h.coupons.Validate(ctx, req.Code, subtotal, principalFrom(r.Context()).UserID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	resp := ValidateCouponResponseDTO{
		Valid:    result.Valid,
		Discount: result.Discount.StringFixed(2),
		Subtotal: subtotal.StringFixed(2),
		Reason:   string(result.Reason),
		Message:  result.Message,
	}
	if result.Coupon != nil {
		resp.Code = result.Coupon.Code
	}
	respondJSON(w, http.StatusOK, resp)
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if !principalFrom(r.Context()).Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "sign in to check out")
		return
	}

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		req.IdempotencyKey = key
	}

	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	o, err := h.checkout.Checkout(ctx, store, checkout.Request{
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(o))
}
