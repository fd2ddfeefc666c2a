package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/gorilla/websocket"
)

const (
	feedBuffer     = 8
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
)

// FeedHandler streams cart snapshots to a browser tab over a websocket, so tabs
// and devices of one identity see each other's changes.
type FeedHandler struct {
	sessions Sessions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewFeedHandler(sessions Sessions, allowedOrigins []string, logger *slog.Logger) *FeedHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &FeedHandler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			// same-origin pages and the configured origins may open the feed
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// GET /api/v1/cart/feed
func (h *FeedHandler) Feed(w http.ResponseWriter, r *http.Request) {
	store, release, ok := acquireCart(w, r, h.sessions, h.logger)
	if !ok {
		return
	}
	defer release()

	// the upgrade response is written on the hijacked connection, not from w.Header()
	conn, err := h.upgrader.Upgrade(w, r, http.Header{SessionHeader: []string{sessionFrom(r.Context())}})
	if err != nil {
		// Upgrade already wrote the error response
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := make(chan cart.Snapshot, feedBuffer)
	unsubscribe := store.Subscribe(func(s cart.Snapshot) {
		select {
		case updates <- s:
		default:
			// slow reader; drop the oldest so the newest always gets through
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	if err := h.write(conn, store.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case s := <-updates:
			if err := h.write(conn, s); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *FeedHandler) write(conn *websocket.Conn, s cart.Snapshot) error {
	_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteJSON(toCartDTO(s))
}
