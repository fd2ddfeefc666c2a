package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxQuantity = 99

// Sessions hands out the cart store of a browser session.
type Sessions interface {
	Acquire(ctx context.Context, token, userID string) (*cart.Store, func(), error)
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartHandler struct {
	sessions Sessions
	products ProductLookup
	timeout  time.Duration
	logger   *slog.Logger
}

func NewCartHandler(sessions Sessions, products ProductLookup, timeout time.Duration, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		products: products,
		timeout:  timeout,
		logger:   logger,
	}
}

type AddItemRequestDTO struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Variant   map[string]string `json:"variant,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartItemDTO struct {
	Key string `json:"key"`
	domain.CartItem
}

type CartResponseDTO struct {
	Owner         string        `json:"owner"`
	Authenticated bool          `json:"authenticated"`
	Items         []CartItemDTO `json:"items"`
	Count         int           `json:"count"`
	Total         string        `json:"total"`
	Revision      int64         `json:"revision"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	respondJSON(w, http.StatusOK, toCartDTO(store.Snapshot()))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	product, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	if err := store.AddItem(*product, req.Quantity, domain.Variant(req.Variant)); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(store.Snapshot()))
}

// PUT /api/v1/cart/items/{key}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	key, ok := itemKeyParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	if err := store.UpdateQuantity(key, req.Quantity); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(store.Snapshot()))
}

// DELETE /api/v1/cart/items/{key}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	key, ok := itemKeyParam(w, r)
	if !ok {
		return
	}

	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	if err := store.RemoveItem(key); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(store.Snapshot()))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	if err := store.Clear(); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartDTO(store.Snapshot()))
}

// acquireCart resolves the session's store for the caller's identity. A failed
// guest cart merge is reported to the caller; the store stays switched.
func acquireCart(w http.ResponseWriter, r *http.Request, sessions Sessions, logger *slog.Logger) (*cart.Store, func(), bool) {
	p := principalFrom(r.Context())
	store, release, err := sessions.Acquire(r.Context(), sessionFrom(r.Context()), p.UserID)
	if err != nil {
		if release != nil {
			release()
		}
		if store != nil {
			logger.ErrorContext(r.Context(), "guest cart merge failed", "user_id", p.UserID, "error", err)
			respondError(w, http.StatusServiceUnavailable, "cart_merge_failed",
				"your guest cart could not be merged, it has been kept and will not be lost")
			return nil, nil, false
		}
		handleError(w, r, logger, err)
		return nil, nil, false
	}
	return store, release, true
}

func itemKeyParam(w http.ResponseWriter, r *http.Request) (domain.ItemKey, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(chi.URLParam(r, "key"))
	if err != nil || len(raw) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_item_key", "item key must be base64url encoded")
		return "", false
	}
	return domain.ItemKey(raw), true
}

func encodeItemKey(key domain.ItemKey) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func toCartDTO(s cart.Snapshot) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, CartItemDTO{Key: encodeItemKey(item.Key()), CartItem: item})
	}
	return CartResponseDTO{
		Owner:         s.Identity.ID,
		Authenticated: s.Identity.Authenticated,
		Items:         items,
		Count:         s.Count,
		Total:         s.Total.StringFixed(2),
		Revision:      s.Revision,
	}
}
