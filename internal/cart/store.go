package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/circuitbreaker"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/guest"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrItemNotFound    = errors.New("item not found in cart")
	ErrStoreClosed     = errors.New("cart store is closed")
)

const defaultWriteTimeout = 5 * time.Second

type Config struct {
	Identity domain.Identity
	Remote   repository.CartRepository
	Guest    guest.Store
	// Resolver folds the guest cart into the user's cart on login. Optional.
	Resolver     *Resolver
	Breaker      *gobreaker.CircuitBreaker[struct{}]
	Logger       *slog.Logger
	WriteTimeout time.Duration
}

// Snapshot is an immutable view of the cart at one revision.
type Snapshot struct {
	Identity     domain.Identity   `json:"-"`
	Items        []domain.CartItem `json:"items"`
	Revision     int64             `json:"revision"`
	Count        int               `json:"count"`
	Total        decimal.Decimal   `json:"total"`
	LastModified time.Time         `json:"last_modified"`
}

// Store owns the in-memory cart of one session. Mutations apply synchronously and
// are persisted in the background; pushes from the remote document replace the
// whole item set.
type Store struct {
	mu           sync.Mutex
	identity     domain.Identity
	items        []domain.CartItem
	revision     int64
	lastModified time.Time
	generation   uint64
	cancelWatch  repository.CancelFunc
	mergedGuests []string
	listeners    map[int]func(Snapshot)
	nextListener int
	closed       bool

	// seq orders published snapshots; deliverMu serializes delivery so listeners
	// never see an older state after a newer one.
	seq       uint64
	deliverMu sync.Mutex
	delivered uint64

	remote   repository.CartRepository
	guest    guest.Store
	resolver *Resolver
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	writer *writer
}

func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = circuitbreaker.New[struct{}]("cart-writes", cfg.Logger)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		identity:  cfg.Identity,
		listeners: make(map[int]func(Snapshot)),
		remote:    cfg.Remote,
		guest:     cfg.Guest,
		resolver:  cfg.Resolver,
		breaker:   cfg.Breaker,
		logger:    cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
		ctx:       ctx,
		cancel:    cancel,
	}
	s.writer = newWriter(s.persist, cfg.WriteTimeout, cfg.Logger)
	return s
}

// Initialize binds the store to identity. The previous subscription is cancelled
// first and the generation bumped, so late callbacks from it are dropped.
func (s *Store) Initialize(ctx context.Context, identity domain.Identity) error {
	_, err := s.initialize(ctx, identity)
	return err
}

func (s *Store) initialize(ctx context.Context, identity domain.Identity) (uint64, error) {
	if identity.IsZero() {
		return 0, errors.New("identity is required")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrStoreClosed
	}
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
	s.generation++
	gen := s.generation
	s.identity = identity
	s.items = nil
	s.revision = 0
	s.lastModified = time.Time{}
	s.mergedGuests = nil
	s.mu.Unlock()

	if !identity.Authenticated {
		cart, err := s.guest.Load(ctx, identity.ID)
		if errors.Is(err, guest.ErrGuestCartMiss) {
			s.notify()
			return gen, nil
		}
		if err != nil {
			return gen, fmt.Errorf("failed to load guest cart: %w", err)
		}
		s.apply(gen, cart)
		return gen, nil
	}

	cancel, err := s.remote.WatchCart(s.ctx, identity.ID, func(c *domain.Cart) {
		s.apply(gen, c)
	})
	if err != nil {
		return gen, fmt.Errorf("failed to subscribe to cart: %w", err)
	}

	s.mu.Lock()
	if s.generation != gen {
		// superseded while subscribing
		s.mu.Unlock()
		cancel()
		return gen, nil
	}
	s.cancelWatch = cancel
	s.mu.Unlock()

	cart, err := s.remote.GetCart(ctx, identity.ID)
	if errors.Is(err, repository.ErrCartNotFound) {
		s.notify()
		return gen, nil
	}
	if err != nil {
		return gen, fmt.Errorf("failed to load cart: %w", err)
	}
	s.apply(gen, cart)
	return gen, nil
}

// SwitchIdentity moves the store to next. Going from a guest to a user runs the
// merge once; its failure is returned and the identity switch still stands.
func (s *Store) SwitchIdentity(ctx context.Context, next domain.Identity) error {
	prev := s.Identity()
	if prev == next {
		return nil
	}

	// the merge reads the guest store, so queued guest writes must land first
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush cart before identity switch: %w", err)
	}

	gen, err := s.initialize(ctx, next)
	if err != nil {
		return err
	}

	if prev.IsZero() || prev.Authenticated || !next.Authenticated || s.resolver == nil {
		return nil
	}

	return s.mergeGuest(ctx, gen, prev.ID, next.ID)
}

// MergeGuest folds guestToken's cart into the signed-in user's cart, for a merge
// that failed during SwitchIdentity. A cart already merged is not counted twice.
func (s *Store) MergeGuest(ctx context.Context, guestToken string) error {
	s.mu.Lock()
	identity, gen := s.identity, s.generation
	s.mu.Unlock()

	if !identity.Authenticated {
		return errors.New("guest cart can only be merged into a signed-in cart")
	}
	if s.resolver == nil {
		return nil
	}
	// a queued local write would otherwise replace the merged document
	if err := s.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush cart before merge: %w", err)
	}
	return s.mergeGuest(ctx, gen, guestToken, identity.ID)
}

func (s *Store) mergeGuest(ctx context.Context, gen uint64, guestToken, userID string) error {
	merged, err := s.resolver.Merge(ctx, guestToken, userID)
	if merged != nil {
		s.apply(gen, merged)
	}
	if err != nil {
		return fmt.Errorf("failed to merge guest cart: %w", err)
	}
	return nil
}

// AddItem snapshots the product price now and accumulates quantity on an existing key.
func (s *Store) AddItem(product domain.Product, quantity int, variant domain.Variant) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	variant = variant.Sanitize()
	key := domain.NewItemKey(product.ID, variant)

	return s.mutate(func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].Key() == key {
				items[i].Quantity += quantity
				return items, true
			}
		}
		return append(items, domain.CartItem{
			ProductID:         product.ID,
			Name:              product.Name,
			UnitPrice:         product.EffectivePrice(),
			OriginalUnitPrice: product.Price,
			Quantity:          quantity,
			VendorID:          product.VendorID,
			VendorName:        product.VendorName,
			SelectedVariant:   variant,
			AddedAt:           s.now(),
		}), true
	})
}

// UpdateQuantity sets the quantity; below 1 it removes the item.
func (s *Store) UpdateQuantity(key domain.ItemKey, quantity int) error {
	if quantity < 1 {
		return s.RemoveItem(key)
	}

	found := false
	err := s.mutate(func(items []domain.CartItem) ([]domain.CartItem, bool) {
		for i := range items {
			if items[i].Key() == key {
				found = true
				if items[i].Quantity == quantity {
					return items, false
				}
				items[i].Quantity = quantity
				return items, true
			}
		}
		return items, false
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrItemNotFound
	}
	return nil
}

// RemoveItem is a no-op for a key that is not in the cart.
func (s *Store) RemoveItem(key domain.ItemKey) error {
	return s.mutate(func(items []domain.CartItem) ([]domain.CartItem, bool) {
		out := items[:0:0]
		for _, item := range items {
			if item.Key() != key {
				out = append(out, item)
			}
		}
		return out, len(out) != len(items)
	})
}

func (s *Store) Clear() error {
	return s.mutate(func(items []domain.CartItem) ([]domain.CartItem, bool) {
		return nil, true
	})
}

// Deduct subtracts the quantities of items from the matching lines and drops lines
// that reach zero. Lines added or raised since items were read keep the difference.
func (s *Store) Deduct(items []domain.CartItem) error {
	if len(items) == 0 {
		return nil
	}
	taken := make(map[domain.ItemKey]int, len(items))
	for _, item := range items {
		taken[item.Key()] += item.Quantity
	}

	return s.mutate(func(current []domain.CartItem) ([]domain.CartItem, bool) {
		out := current[:0:0]
		changed := false
		for _, item := range current {
			if n := taken[item.Key()]; n > 0 {
				changed = true
				item.Quantity -= n
				if item.Quantity < 1 {
					continue
				}
			}
			out = append(out, item)
		}
		return out, changed
	})
}

// Total is Σ unitPrice·quantity.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Subtotal(s.items)
}

// Count is Σ quantity.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return count(s.items)
}

func (s *Store) Items() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

func (s *Store) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change, local or pushed. Listeners are called one
// snapshot at a time in state order; fn must not block or call back into the store.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Flush waits until every mutation made so far has been written.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close stops the subscription and writes whatever is still queued.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.generation++
	if s.cancelWatch != nil {
		s.cancelWatch()
		s.cancelWatch = nil
	}
	s.mu.Unlock()

	s.cancel()
	return s.writer.close(ctx)
}

func (s *Store) mutate(fn func([]domain.CartItem) ([]domain.CartItem, bool)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	items, changed := fn(s.items)
	if !changed {
		s.mu.Unlock()
		return nil
	}
	s.items = items
	s.revision++
	s.lastModified = s.now()
	snap, seq, listeners := s.publishLocked()
	s.writer.enqueue(pendingWrite{
		identity: s.identity,
		cart:     documentFrom(s.identity, snap, s.mergedGuests),
	})
	s.mu.Unlock()

	s.deliver(seq, snap, listeners)
	return nil
}

// apply replaces the item set with a pushed or loaded document. Callbacks from an
// older generation and documents older than the local revision are dropped.
func (s *Store) apply(gen uint64, cart *domain.Cart) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("dropped cart push from previous identity", "owner_id", cart.ID)
		return
	}
	if cart.Revision < s.revision {
		s.mu.Unlock()
		s.logger.Debug("dropped stale cart push", "owner_id", cart.ID,
			"push_revision", cart.Revision, "local_revision", s.revision)
		return
	}
	s.items = domain.CloneItems(cart.Items)
	s.revision = cart.Revision
	s.lastModified = cart.LastModified
	s.mergedGuests = append([]string(nil), cart.MergedGuests...)
	snap, seq, listeners := s.publishLocked()
	s.mu.Unlock()

	s.deliver(seq, snap, listeners)
}

func (s *Store) notify() {
	s.mu.Lock()
	snap, seq, listeners := s.publishLocked()
	s.mu.Unlock()

	s.deliver(seq, snap, listeners)
}

// publishLocked takes the snapshot listeners will see, stamped with its place in state order.
func (s *Store) publishLocked() (Snapshot, uint64, []func(Snapshot)) {
	s.seq++
	return s.snapshotLocked(), s.seq, s.listenersLocked()
}

// deliver drops a snapshot once a later one has been delivered.
func (s *Store) deliver(seq uint64, snap Snapshot, listeners []func(Snapshot)) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if seq <= s.delivered {
		s.logger.Debug("dropped superseded cart snapshot", "revision", snap.Revision)
		return
	}
	s.delivered = seq
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Store) persist(ctx context.Context, w pendingWrite) error {
	_, err := s.breaker.Execute(func() (struct{}, error) {
		if w.identity.Authenticated {
			return struct{}{}, s.remote.SaveCart(ctx, w.cart)
		}
		return struct{}{}, s.guest.Save(ctx, w.cart)
	})
	return err
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:     s.identity,
		Items:        domain.CloneItems(s.items),
		Revision:     s.revision,
		Count:        count(s.items),
		Total:        domain.Subtotal(s.items),
		LastModified: s.lastModified,
	}
}

func (s *Store) listenersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

// documentFrom builds the sanitized durable form of a snapshot.
func documentFrom(identity domain.Identity, snap Snapshot, mergedGuests []string) *domain.Cart {
	items := make([]domain.CartItem, len(snap.Items))
	for i, item := range snap.Items {
		items[i] = item.Sanitize()
	}
	return &domain.Cart{
		ID:           identity.ID,
		Items:        items,
		Revision:     snap.Revision,
		LastModified: snap.LastModified,
		MergedGuests: append([]string(nil), mergedGuests...),
	}
}

func count(items []domain.CartItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}
