package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCart struct {
	identity  domain.Identity
	items     []domain.CartItem
	deducted  int
	deductErr error
}

func (f *fakeCart) Identity() domain.Identity { return f.identity }

func (f *fakeCart) Snapshot() cart.Snapshot {
	return cart.Snapshot{Identity: f.identity, Items: domain.CloneItems(f.items)}
}

func (f *fakeCart) Deduct(items []domain.CartItem) error {
	f.deducted++
	if f.deductErr != nil {
		return f.deductErr
	}
	taken := make(map[domain.ItemKey]int)
	for _, item := range items {
		taken[item.Key()] += item.Quantity
	}
	var left []domain.CartItem
	for _, item := range f.items {
		item.Quantity -= taken[item.Key()]
		if item.Quantity > 0 {
			left = append(left, item)
		}
	}
	f.items = left
	return nil
}

type fakeOrders struct {
	got      order.CreateOrderRequest
	err      error
	deadline bool
	// during runs while the order is being placed
	during func()
}

func (f *fakeOrders) CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*domain.Order, error) {
	f.got = req
	_, f.deadline = ctx.Deadline()
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Order{ID: "ORD-1", CustomerID: req.CustomerID, Items: req.Items}, nil
}

func cartWithItem(identity domain.Identity) *fakeCart {
	return &fakeCart{
		identity: identity,
		items:    []domain.CartItem{{ProductID: "p-1", UnitPrice: decimal.NewFromInt(10), Quantity: 2}},
	}
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	orders := &fakeOrders{}
	svc := NewService(orders, time.Second, nil)
	c := cartWithItem(domain.User("user-1"))

	o, err := svc.Checkout(context.Background(), c, Request{PaymentMethod: "card", CouponCode: "SAVE10", IdempotencyKey: "k-1"})

	require.NoError(t, err)
	assert.Equal(t, "ORD-1", o.ID)
	assert.Equal(t, "user-1", orders.got.CustomerID)
	assert.Equal(t, "SAVE10", orders.got.CouponCode)
	assert.Equal(t, "k-1", orders.got.IdempotencyKey)
	assert.Len(t, orders.got.Items, 1)
	assert.True(t, orders.deadline)
	assert.Equal(t, 1, c.deducted)
	assert.Empty(t, c.items)
}

func TestCheckoutRequiresSignIn(t *testing.T) {
	orders := &fakeOrders{}
	c := cartWithItem(domain.Anonymous("guest-1"))

	_, err := NewService(orders, 0, nil).Checkout(context.Background(), c, Request{PaymentMethod: "card"})

	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.Zero(t, c.deducted)
}

func TestCheckoutEmptyCart(t *testing.T) {
	c := &fakeCart{identity: domain.User("user-1")}

	_, err := NewService(&fakeOrders{}, 0, nil).Checkout(context.Background(), c, Request{PaymentMethod: "card"})

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutKeepsCartWhenOrderFails(t *testing.T) {
	orders := &fakeOrders{err: order.ErrCouponRejected}
	c := cartWithItem(domain.User("user-1"))

	_, err := NewService(orders, 0, nil).Checkout(context.Background(), c, Request{PaymentMethod: "card"})

	assert.ErrorIs(t, err, order.ErrCouponRejected)
	assert.Zero(t, c.deducted)
	assert.Len(t, c.items, 1)
}

func TestCheckoutSucceedsWhenDeductFails(t *testing.T) {
	c := cartWithItem(domain.User("user-1"))
	c.deductErr = errors.New("store closed")

	o, err := NewService(&fakeOrders{}, 0, nil).Checkout(context.Background(), c, Request{PaymentMethod: "card"})

	require.NoError(t, err)
	assert.NotNil(t, o)
}

func TestCheckoutKeepsItemsAddedDuringOrder(t *testing.T) {
	ctx := context.Background()
	store := cart.NewStore(cart.Config{
		Identity: domain.User("user-1"),
		Remote:   repository.NewMemoryCartRepository(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = store.Close(ctx) })
	require.NoError(t, store.Initialize(ctx, domain.User("user-1")))

	vase := domain.Product{ID: "vase", Name: "Clay Vase", Price: decimal.NewFromInt(2400)}
	scarf := domain.Product{ID: "scarf", Name: "Batik Scarf", Price: decimal.NewFromInt(1850)}
	require.NoError(t, store.AddItem(vase, 2, nil))

	// another tab adds to the cart while the order is placed
	orders := &fakeOrders{during: func() {
		require.NoError(t, store.AddItem(vase, 1, nil))
		require.NoError(t, store.AddItem(scarf, 1, nil))
	}}

	o, err := NewService(orders, 0, nil).Checkout(ctx, store, Request{PaymentMethod: "card"})

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)

	left := map[string]int{}
	for _, item := range store.Items() {
		left[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[string]int{"vase": 1, "scarf": 1}, left)
}
