package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrGuestCartMiss = errors.New("guest cart not found")

// Store is the ephemeral cart storage for anonymous sessions.
type Store interface {
	Load(ctx context.Context, token string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps guest carts as JSON under a sliding TTL.
type RedisStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisStore) Load(ctx context.Context, token string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGuestCartMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal guest cart failed: %w", err)
	}

	return &cart, nil
}

func (r *RedisStore) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal guest cart failed: %w", err)
	}

	// spread expirations of carts created in the same burst
	jitter := time.Duration(rand.Intn(60)) * time.Minute
	if err := r.client.Set(ctx, cartKey(cart.ID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, cartKey(token)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(token string) string {
	return fmt.Sprintf("guest-cart:%s", token)
}
