package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	GetOrder(ctx context.Context, orderID string, actor domain.Actor) (*domain.Order, error)
	ListOrders(ctx context.Context, customerID string, actor domain.Actor) ([]*domain.Order, error)
	Transition(ctx context.Context, orderID string, req order.TransitionRequest, actor domain.Actor) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
	logger  *slog.Logger
}

func NewOrdersHandler(orders OrderService, timeout time.Duration, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		logger:  logger,
	}
}

type OrderResponseDTO struct {
	*domain.Order
	Progress int `json:"progress"`
}

type TransitionRequestDTO struct {
	Status         domain.OrderStatus `json:"status"`
	TrackingNumber string             `json:"tracking_number,omitempty"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := principalFrom(r.Context())
	if !p.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	customerID := p.UserID
	if q := r.URL.Query().Get("customer_id"); q != "" {
		customerID = q
	}

	orders, err := h.orders.ListOrders(ctx, customerID, p.Actor())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderDTO(o))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := principalFrom(r.Context())
	if !p.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	o, err := h.orders.GetOrder(ctx, chi.URLParam(r, "id"), p.Actor())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(o))
}

// POST /api/v1/orders/{id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := principalFrom(r.Context())
	if !p.Authenticated() {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing user authentication")
		return
	}

	var req TransitionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	o, err := h.orders.Transition(ctx, chi.URLParam(r, "id"), order.TransitionRequest{
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
	}, p.Actor())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(o))
}

func toOrderDTO(o *domain.Order) OrderResponseDTO {
	return OrderResponseDTO{Order: o, Progress: o.Status.Progress()}
}
