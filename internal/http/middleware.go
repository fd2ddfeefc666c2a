package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const SessionHeader = "X-Session-ID"

type contextKey int

const (
	principalKey contextKey = iota
	sessionKey
)

// Principal is the caller as asserted by the bearer token. Zero means signed out.
type Principal struct {
	UserID string
	Role   domain.Role
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

func (p Principal) Actor() domain.Actor {
	role := p.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	return domain.Actor{ID: p.UserID, Role: role}
}

// Claims are issued by the external identity provider.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware reads an optional HS256 bearer token. A request without one
// continues signed out; a present but invalid token is rejected.
func AuthMiddleware(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "authorization header must be a bearer token")
				return
			}

			var claims Claims
			token, err := parser.ParseWithClaims(raw, &claims, keyFunc)
			if err != nil || !token.Valid {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				respondError(w, http.StatusUnauthorized, "unauthenticated", msg)
				return
			}
			if claims.Subject == "" {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "token has no subject")
				return
			}

			p := Principal{UserID: claims.Subject, Role: domain.Role(claims.Role)}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware gives every request a session token, minting one when the
// client has none yet. The token is echoed back so the client can keep it.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(SessionHeader))
		if token == "" || len(token) > 128 {
			token = uuid.NewString()
		}
		w.Header().Set(SessionHeader, token)
		ctx := context.WithValue(r.Context(), sessionKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs one line per request through slog.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func principalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey).(Principal)
	return p
}

func sessionFrom(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey).(string)
	return s
}
