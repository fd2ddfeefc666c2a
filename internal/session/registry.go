package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

const (
	// CleanupInterval is how often idle sessions are looked for.
	CleanupInterval = time.Minute
	closeTimeout    = 5 * time.Second
)

var ErrRegistryClosed = errors.New("session registry is closed")

// StoreFactory builds an uninitialized cart store for a new session.
type StoreFactory func() *cart.Store

// Registry keeps one cart store per browser session and follows that session
// through login and logout.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	closed   bool

	newStore    StoreFactory
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

type entry struct {
	// mu serializes initialization and identity switches of one session
	mu          sync.Mutex
	store       *cart.Store
	initialized bool
	// pendingMerge is the guest token whose merge failed during login
	pendingMerge string
	inUse        int
	lastSeen     time.Time
}

func NewRegistry(newStore StoreFactory, idleTimeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		sessions:    make(map[string]*entry),
		newStore:    newStore,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	r.wg.Add(1)
	go r.cleanupLoop()

	return r
}

// Acquire returns the session's store bound to the identity derived from userID
// (empty means signed out). A guest to user change merges the guest cart, once;
// a merge that failed is retried on the next Acquire for the same user.
// release must be called when the caller is done with the store, also on error.
func (r *Registry) Acquire(ctx context.Context, token, userID string) (*cart.Store, func(), error) {
	if token == "" {
		return nil, nil, errors.New("session token is required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, nil, ErrRegistryClosed
	}
	e, ok := r.sessions[token]
	if !ok {
		e = &entry{store: r.newStore()}
		r.sessions[token] = e
	}
	e.inUse++
	e.lastSeen = r.now()
	r.mu.Unlock()

	release := r.releaser(e)

	want := domain.Anonymous(token)
	if userID != "" {
		want = domain.User(userID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		// start from the guest cart so one persisted before a restart is still merged
		if err := e.store.Initialize(ctx, domain.Anonymous(token)); err != nil {
			release()
			return nil, nil, fmt.Errorf("failed to initialize session cart: %w", err)
		}
		e.initialized = true
	}

	current := e.store.Identity()
	if current != want {
		e.pendingMerge = ""
		r.logger.InfoContext(ctx, "session identity changed",
			"session", token, "from", current.String(), "to", want.String())
		if err := e.store.SwitchIdentity(ctx, want); err != nil {
			if !current.Authenticated && want.Authenticated && e.store.Identity() == want {
				e.pendingMerge = current.ID
			}
			return e.store, release, err
		}
		return e.store, release, nil
	}

	if e.pendingMerge != "" && want.Authenticated {
		if err := e.store.MergeGuest(ctx, e.pendingMerge); err != nil {
			return e.store, release, err
		}
		r.logger.InfoContext(ctx, "retried guest cart merge", "session", token, "user_id", want.ID)
		e.pendingMerge = ""
	}
	return e.store, release, nil
}

func (r *Registry) releaser(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			e.inUse--
			e.lastSeen = r.now()
			r.mu.Unlock()
		})
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCleanup:
			return
		}
	}
}

// evictIdle closes sessions nobody has used for idleTimeout.
func (r *Registry) evictIdle() int {
	cutoff := r.now().Add(-r.idleTimeout)

	r.mu.Lock()
	var idle []*entry
	for token, e := range r.sessions {
		if e.inUse == 0 && e.lastSeen.Before(cutoff) {
			idle = append(idle, e)
			delete(r.sessions, token)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		r.closeStore(e.store)
	}
	if len(idle) > 0 {
		r.logger.Debug("evicted idle sessions", "count", len(idle))
	}
	return len(idle)
}

// Close stops the cleanup loop and flushes every store.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	close(r.stopCleanup)
	r.wg.Wait()

	for _, e := range sessions {
		r.closeStore(e.store)
	}
}

func (r *Registry) closeStore(s *cart.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		r.logger.Error("failed to flush cart on session close", "identity", s.Identity().String(), "error", err)
	}
}
