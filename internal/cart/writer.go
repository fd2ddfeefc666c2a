package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
)

type pendingWrite struct {
	identity domain.Identity
	cart     *domain.Cart
}

// writer persists cart documents on one goroutine, in enqueue order. Queued
// writes for the same owner collapse into the latest one.
type writer struct {
	mu      sync.Mutex
	queue   []pendingWrite
	writeMu sync.Mutex

	persist func(context.Context, pendingWrite) error
	timeout time.Duration
	logger  *slog.Logger

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newWriter(persist func(context.Context, pendingWrite) error, timeout time.Duration, logger *slog.Logger) *writer {
	w := &writer{
		persist: persist,
		timeout: timeout,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(p pendingWrite) {
	w.mu.Lock()
	if n := len(w.queue); n > 0 && w.queue[n-1].identity == p.identity {
		w.queue[n-1] = p
	} else {
		w.queue = append(w.queue, p)
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			_ = w.drain(context.Background())
		case <-w.stop:
			return
		}
	}
}

// drain writes everything queued. A failed write goes back to the head of the
// queue unless a newer document for the same owner replaced it.
func (w *writer) drain(ctx context.Context) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	for {
		p, ok := w.take()
		if !ok {
			return nil
		}

		wctx, cancel := context.WithTimeout(ctx, w.timeout)
		err := w.persist(wctx, p)
		cancel()
		if err != nil {
			w.logger.Error("failed to persist cart",
				"owner_id", p.cart.ID,
				"authenticated", p.identity.Authenticated,
				"revision", p.cart.Revision,
				"error", err,
			)
			w.requeue(p)
			return err
		}
	}
}

func (w *writer) take() (pendingWrite, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return pendingWrite{}, false
	}
	p := w.queue[0]
	w.queue = w.queue[1:]
	return p, true
}

func (w *writer) requeue(p pendingWrite) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) > 0 && w.queue[0].identity == p.identity {
		return
	}
	w.queue = append([]pendingWrite{p}, w.queue...)
}

func (w *writer) flush(ctx context.Context) error {
	return w.drain(ctx)
}

func (w *writer) close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
	return w.drain(ctx)
}
