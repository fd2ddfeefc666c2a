package cart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/guest"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/shopspring/decimal"
)

var errUnavailable = errors.New("store unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryGuestStore struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	saveErr   error
	deleteErr error
	deletes   int
}

func newMemoryGuestStore() *memoryGuestStore {
	return &memoryGuestStore{carts: make(map[string]*domain.Cart)}
}

func (m *memoryGuestStore) Load(_ context.Context, token string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[token]
	if !ok {
		return nil, guest.ErrGuestCartMiss
	}
	out := *c
	out.Items = domain.CloneItems(c.Items)
	return &out, nil
}

func (m *memoryGuestStore) Save(_ context.Context, c *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	out := *c
	out.Items = domain.CloneItems(c.Items)
	m.carts[c.ID] = &out
	return nil
}

func (m *memoryGuestStore) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.carts, token)
	return nil
}

func (m *memoryGuestStore) has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[token]
	return ok
}

// flakyRemote wraps the in-memory repository with injectable failures.
type flakyRemote struct {
	*repository.MemoryCartRepository

	mu      sync.Mutex
	saveErr error
	saves   int
	onSave  func(n int, c *domain.Cart)
	// beforeSave runs ahead of the write, where a concurrent writer would land
	beforeSave func(n int)
	gets       int
	onGet      func(n int) error
}

func newFlakyRemote() *flakyRemote {
	return &flakyRemote{MemoryCartRepository: repository.NewMemoryCartRepository()}
}

func (f *flakyRemote) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	f.mu.Lock()
	f.gets++
	n, hook := f.gets, f.onGet
	f.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return nil, err
		}
	}
	return f.MemoryCartRepository.GetCart(ctx, ownerID)
}

func (f *flakyRemote) SaveCart(ctx context.Context, c *domain.Cart) error {
	return f.save(c, func() error { return f.MemoryCartRepository.SaveCart(ctx, c) })
}

func (f *flakyRemote) SaveCartIfRevision(ctx context.Context, c *domain.Cart, expected int64) error {
	return f.save(c, func() error { return f.MemoryCartRepository.SaveCartIfRevision(ctx, c, expected) })
}

func (f *flakyRemote) save(c *domain.Cart, write func() error) error {
	f.mu.Lock()
	f.saves++
	n, err, hook, before := f.saves, f.saveErr, f.onSave, f.beforeSave
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if before != nil {
		before(n)
	}
	if err := write(); err != nil {
		return err
	}
	if hook != nil {
		hook(n, c)
	}
	return nil
}

func (f *flakyRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *flakyRemote) setSaveErr(err error) {
	f.mu.Lock()
	f.saveErr = err
	f.mu.Unlock()
}

func product(id string, price float64) domain.Product {
	return domain.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromFloat(price), VendorID: "v-1", VendorName: "Crafts Co"}
}

func quantities(items []domain.CartItem) map[domain.ItemKey]int {
	out := make(map[domain.ItemKey]int, len(items))
	for _, item := range items {
		out[item.Key()] = item.Quantity
	}
	return out
}
