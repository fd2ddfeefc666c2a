package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	JWTSecret          []byte
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string
}

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Feed     *FeedHandler
}

func NewRouter(cfg RouterConfig, handlers Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(SessionMiddleware)
	r.Use(AuthMiddleware(cfg.JWTSecret))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// long-lived, kept out of the request timeout
		r.Get("/cart/feed", handlers.Feed.Feed)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
			if cfg.MaxRequestBodySize > 0 {
				r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
			}

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", handlers.Cart.GetCart)
				r.Delete("/", handlers.Cart.ClearCart)
				r.Post("/items", handlers.Cart.AddItem)
				r.Put("/items/{key}", handlers.Cart.UpdateQuantity)
				r.Delete("/items/{key}", handlers.Cart.RemoveItem)
			})

			r.Post("/coupons/validate", handlers.Checkout.ValidateCoupon)
			r.Post("/checkout", handlers.Checkout.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", handlers.Orders.ListOrders)
				r.Get("/{id}", handlers.Orders.GetOrder)
				r.Post("/{id}/status", handlers.Orders.UpdateStatus)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
