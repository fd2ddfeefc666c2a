package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/guest"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
)

var (
	ErrMergeNotConfirmed = errors.New("merged cart was not confirmed")
	ErrGuestCleanup      = errors.New("failed to clear guest cart after merge")
)

const (
	defaultMergeAttempts = 3
	defaultMergeBackoff  = 100 * time.Millisecond
)

// Resolver folds a guest cart into a user's durable cart.
type Resolver struct {
	remote   repository.CartRepository
	guest    guest.Store
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

func NewResolver(remote repository.CartRepository, guestStore guest.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		remote:   remote,
		guest:    guestStore,
		logger:   logger,
		attempts: defaultMergeAttempts,
		backoff:  defaultMergeBackoff,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Merge returns nil when there is nothing to merge. The merged document records
// which guest cart it absorbed, so a retry after any partial failure never adds
// the guest items twice.
// The guest cart is deleted only after the merged document has been read back; if
// that delete fails the merged cart is returned together with ErrGuestCleanup.
func (r *Resolver) Merge(ctx context.Context, guestToken, userID string) (*domain.Cart, error) {
	guestCart, err := r.guest.Load(ctx, guestToken)
	if errors.Is(err, guest.ErrGuestCartMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest cart: %w", err)
	}
	if guestCart.IsEmpty() {
		return nil, nil
	}

	merged, err := r.writeVerified(ctx, mergeMarker(guestToken, guestCart), userID, guestCart.Items)
	if err != nil {
		return nil, err
	}

	r.logger.Info("guest cart merged",
		"user_id", userID,
		"guest_items", len(guestCart.Items),
		"merged_items", len(merged.Items),
		"revision", merged.Revision,
	)

	if err := r.deleteGuest(ctx, guestToken); err != nil {
		return merged, fmt.Errorf("%w: %v", ErrGuestCleanup, err)
	}
	return merged, nil
}

// mergeMarker names one state of a guest cart. A session keeps its token across
// logout, so the token alone would hide a later guest cart.
func mergeMarker(guestToken string, guestCart *domain.Cart) string {
	return fmt.Sprintf("%s@%d.%d", guestToken, guestCart.Revision, guestCart.LastModified.UnixNano())
}

// writeVerified writes with a revision check, so a concurrent writer forces a fresh
// read instead of being overwritten. A document that already lists marker is the
// result of an earlier attempt and is returned as is.
func (r *Resolver) writeVerified(ctx context.Context, marker, userID string, guestItems []domain.CartItem) (*domain.Cart, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			if err := r.wait(ctx); err != nil {
				return nil, err
			}
		}

		current, err := r.remote.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			current = &domain.Cart{ID: userID}
		} else if err != nil {
			lastErr = fmt.Errorf("failed to read user cart: %w", err)
			continue
		}
		if current.HasMergedGuest(marker) {
			return current, nil
		}

		merged := &domain.Cart{
			ID:           userID,
			Items:        sanitizeAll(MergeItems(current.Items, guestItems)),
			Revision:     current.Revision + 1,
			LastModified: r.now(),
			MergedGuests: current.WithMergedGuest(marker),
		}
		err = r.remote.SaveCartIfRevision(ctx, merged, current.Revision)
		if errors.Is(err, repository.ErrRevisionConflict) {
			lastErr = ErrMergeNotConfirmed
			r.logger.Warn("user cart changed during merge", "user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			lastErr = fmt.Errorf("failed to write merged cart: %w", err)
			continue
		}

		stored, err := r.remote.GetCart(ctx, userID)
		if err != nil {
			// the next attempt finds the marker if the write landed
			lastErr = fmt.Errorf("failed to read back merged cart: %w", err)
			continue
		}
		if !stored.HasMergedGuest(marker) {
			lastErr = ErrMergeNotConfirmed
			r.logger.Warn("merged cart replaced before confirmation", "user_id", userID, "attempt", attempt)
			continue
		}
		return stored, nil
	}
	return nil, fmt.Errorf("merge gave up after %d attempts: %w", r.attempts, lastErr)
}

func (r *Resolver) deleteGuest(ctx context.Context, token string) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			if werr := r.wait(ctx); werr != nil {
				return werr
			}
		}
		if err = r.guest.Delete(ctx, token); err == nil {
			return nil
		}
	}
	return err
}

func (r *Resolver) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.backoff):
		return nil
	}
}

// MergeItems sums quantities on matching keys; keys only in incoming are appended.
// base keeps its order.
func MergeItems(base, incoming []domain.CartItem) []domain.CartItem {
	out := domain.CloneItems(base)
	index := make(map[domain.ItemKey]int, len(out))
	for i, item := range out {
		index[item.Key()] = i
	}
	for _, item := range domain.CloneItems(incoming) {
		key := item.Key()
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func sanitizeAll(items []domain.CartItem) []domain.CartItem {
	for i := range items {
		items[i] = items[i].Sanitize()
	}
	return items
}
