package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/catalog"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/checkout"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/coupon"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/guest"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type stubProducts map[string]domain.Product

func (s stubProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

type stubCoupons struct {
	result coupon.Result
	err    error
}

func (s stubCoupons) Validate(context.Context, string, decimal.Decimal, string) (coupon.Result, error) {
	return s.result, s.err
}

type stubOrderCreator struct {
	mu   sync.Mutex
	reqs []order.CreateOrderRequest
	err  error
}

func (s *stubOrderCreator) CreateOrder(_ context.Context, req order.CreateOrderRequest) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.reqs = append(s.reqs, req)
	return &domain.Order{
		ID:            "ORD-20260301-0000ABCD",
		CustomerID:    req.CustomerID,
		Items:         req.Items,
		Subtotal:      domain.Subtotal(req.Items),
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.PaymentStatusProcessing,
		Status:        domain.OrderStatusPending,
	}, nil
}

type stubOrders struct {
	order *domain.Order
	err   error

	lastCustomer string
	lastActor    domain.Actor
}

func (s *stubOrders) GetOrder(_ context.Context, _ string, actor domain.Actor) (*domain.Order, error) {
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubOrders) ListOrders(_ context.Context, customerID string, actor domain.Actor) ([]*domain.Order, error) {
	s.lastCustomer = customerID
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	return []*domain.Order{s.order}, nil
}

func (s *stubOrders) Transition(_ context.Context, _ string, req order.TransitionRequest, actor domain.Actor) (*domain.Order, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	o := *s.order
	o.Status = req.Status
	return &o, nil
}

type testServer struct {
	handler http.Handler
	remote  *repository.MemoryCartRepository
	redis   *miniredis.Miniredis
	creator *stubOrderCreator
	coupons *stubCoupons
	orders  *stubOrders
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	remote := repository.NewMemoryCartRepository()
	guestStore := guest.NewRedisStore(client, 24*time.Hour)
	resolver := cart.NewResolver(remote, guestStore, logger)
	registry := session.NewRegistry(func() *cart.Store {
		return cart.NewStore(cart.Config{Remote: remote, Guest: guestStore, Resolver: resolver, Logger: logger})
	}, 30*time.Minute, logger)
	t.Cleanup(registry.Close)

	products := stubProducts{
		"clay-vase":   {ID: "clay-vase", Name: "Clay Vase", Price: decimal.NewFromInt(2400)},
		"batik-scarf": {ID: "batik-scarf", Name: "Batik Scarf", Price: decimal.NewFromInt(1850)},
	}
	creator := &stubOrderCreator{}
	coupons := &stubCoupons{}
	orders := &stubOrders{order: &domain.Order{
		ID:         "ORD-20260301-0000ABCD",
		CustomerID: "user-1",
		Status:     domain.OrderStatusShipped,
	}}

	handler := NewRouter(RouterConfig{
		JWTSecret:          testSecret,
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}, Handlers{
		Cart:     NewCartHandler(registry, products, 5*time.Second, logger),
		Checkout: NewCheckoutHandler(registry, coupons, checkout.NewService(creator, 5*time.Second, logger), 5*time.Second, logger),
		Orders:   NewOrdersHandler(orders, 5*time.Second, logger),
		Feed:     NewFeedHandler(registry, nil, logger),
	}, logger)

	return &testServer{
		handler: handler,
		remote:  remote,
		redis:   mr,
		creator: creator,
		coupons: coupons,
		orders:  orders,
	}
}

func token(t *testing.T, userID string, role domain.Role, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

type call struct {
	method  string
	path    string
	body    interface{}
	session string
	token   string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
