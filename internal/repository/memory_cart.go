package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

const watcherBuffer = 64

// MemoryCartRepository keeps cart documents in process. Watchers receive copies in write order.
type MemoryCartRepository struct {
	mu       sync.RWMutex
	carts    map[string]*domain.Cart
	watchers map[string]map[*cartWatcher]struct{}
}

type cartWatcher struct {
	ch chan *domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{
		carts:    make(map[string]*domain.Cart),
		watchers: make(map[string]map[*cartWatcher]struct{}),
	}
}

func (m *MemoryCartRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (m *MemoryCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(cart)
	return nil
}

func (m *MemoryCartRepository) SaveCartIfRevision(ctx context.Context, cart *domain.Cart, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if existing, ok := m.carts[cart.ID]; ok {
		current = existing.Revision
	}
	if current != expected {
		return ErrRevisionConflict
	}
	m.saveLocked(cart)
	return nil
}

func (m *MemoryCartRepository) saveLocked(cart *domain.Cart) {
	stored := cloneCart(cart)
	if stored.LastModified.IsZero() {
		stored.LastModified = time.Now().UTC()
	}
	m.carts[cart.ID] = stored
	for w := range m.watchers[cart.ID] {
		select {
		case w.ch <- cloneCart(stored):
		default:
			// slow watcher; it will catch up on the next write
		}
	}
}

func (m *MemoryCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.carts[ownerID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, ownerID)
	return nil
}

func (m *MemoryCartRepository) WatchCart(ctx context.Context, ownerID string, fn func(*domain.Cart)) (CancelFunc, error) {
	w := &cartWatcher{ch: make(chan *domain.Cart, watcherBuffer)}
	watchCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.watchers[ownerID] == nil {
		m.watchers[ownerID] = make(map[*cartWatcher]struct{})
	}
	m.watchers[ownerID][w] = struct{}{}
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.watchers[ownerID], w)
			if len(m.watchers[ownerID]) == 0 {
				delete(m.watchers, ownerID)
			}
			m.mu.Unlock()
		}()
		for {
			select {
			case cart := <-w.ch:
				fn(cart)
			case <-watchCtx.Done():
				return
			}
		}
	}()

	return CancelFunc(cancel), nil
}

// Watchers reports how many subscriptions are open for ownerID.
func (m *MemoryCartRepository) Watchers(ownerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.watchers[ownerID])
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = domain.CloneItems(c.Items)
	if c.MergedGuests != nil {
		out.MergedGuests = append([]string(nil), c.MergedGuests...)
	}
	return &out
}
