package guest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client, 24*time.Hour)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestLoad_Miss(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cart, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrGuestCartMiss)
	assert.Nil(t, cart)
}

func TestSaveThenLoad(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	cart := &domain.Cart{
		ID: "guest-1",
		Items: []domain.CartItem{
			{ProductID: "p-1", Name: "Candle", UnitPrice: decimal.NewFromInt(300), Quantity: 2, SelectedVariant: domain.Variant{"scent": "rose"}},
		},
		Revision: 3,
	}
	require.NoError(t, store.Save(ctx, cart))
	assert.True(t, mr.Exists("guest-cart:guest-1"))

	got, err := store.Load(ctx, "guest-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Revision)
	require.Len(t, got.Items, 1)
	assert.Equal(t, cart.Items[0].Key(), got.Items[0].Key())
	assert.Equal(t, 2, got.Items[0].Quantity)
}

func TestSave_TTLWithJitter(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, store.Save(context.Background(), &domain.Cart{ID: "guest-2"}))

	ttl := mr.TTL("guest-cart:guest-2")
	assert.True(t, ttl >= 24*time.Hour, "TTL should be at least base TTL")
	assert.True(t, ttl < 25*time.Hour, "TTL should be base + max jitter")
}

func TestLoad_InvalidJSON(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	data, err := json.Marshal(&domain.Cart{ID: "guest-3"})
	require.NoError(t, err)
	require.NoError(t, mr.Set("guest-cart:guest-3", string(data[:5])))

	_, err = store.Load(context.Background(), "guest-3")
	assert.ErrorContains(t, err, "unmarshal guest cart failed")
}

func TestDelete(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Cart{ID: "guest-4"}))
	require.NoError(t, store.Delete(ctx, "guest-4"))
	assert.False(t, mr.Exists("guest-cart:guest-4"))

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "guest-4"))
}

func TestRedisUnavailable(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	mr.SetError("ERR backend unavailable")

	_, err := store.Load(context.Background(), "guest-5")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrGuestCartMiss)
}
