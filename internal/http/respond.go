package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/catalog"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/checkout"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/session"
	"github.com/sony/gobreaker/v2"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError maps domain errors to HTTP statuses. Unknown errors are logged and
// reported as internal without leaking their text.
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var couponErr *order.CouponError
	var transitionErr *order.TransitionError

	switch {
	case errors.As(err, &couponErr):
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   couponErr.Message,
			Code:    "coupon_rejected",
			Details: string(couponErr.Reason),
		})
	case errors.As(err, &transitionErr):
		respondError(w, http.StatusConflict, "illegal_transition", transitionErr.Error())
	case errors.Is(err, order.ErrIdempotencyKey):
		respondError(w, http.StatusConflict, "idempotency_conflict", "idempotency key already used")
	case errors.Is(err, repository.ErrStatusConflict):
		respondError(w, http.StatusConflict, "status_conflict", "order status changed, reload and retry")
	case errors.Is(err, order.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", "not allowed")
	case errors.Is(err, checkout.ErrAuthRequired):
		respondError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", "item not found in cart")
	case errors.Is(err, cart.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, order.ErrEmptyOrder):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, order.ErrInvalidOrder), errors.Is(err, order.ErrUnknownStatus):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, cart.ErrStoreClosed), errors.Is(err, session.ErrRegistryClosed):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
