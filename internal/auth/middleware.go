package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// ErrForbidden is returned when a token addresses another user's resources.
var ErrForbidden = errors.New("forbidden")

type contextKey struct{}

// WithClaims stores verified claims in ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*Claims)
	return c, ok
}

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)

// Guard protects per-user routes. When disabled every request passes.
type Guard struct {
	tokens   *TokenManager
	required bool
	userID   func(*http.Request) string
	onError  ErrorWriter
}

// NewGuard builds a guard. userID extracts the addressed {userId} path value.
func NewGuard(tokens *TokenManager, required bool, userID func(*http.Request) string, onError ErrorWriter) *Guard {
	return &Guard{tokens: tokens, required: required, userID: userID, onError: onError}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Middleware verifies the bearer token and that its subject owns the addressed user id.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.required {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.Parse(bearerToken(r))
		if err != nil {
			slog.WarnContext(r.Context(), "Rejected request token", "component", "auth", "path", r.URL.Path, "error", err)
			g.onError(w, r, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if err := g.checkOwner(r, claims); err != nil {
			g.onError(w, r, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (g *Guard) checkOwner(r *http.Request, claims *Claims) error {
	if g.userID == nil {
		return nil
	}
	raw := g.userID(r)
	if raw == "" {
		return nil
	}
	want, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrForbidden
	}
	got, err := claims.UserID()
	if err != nil || got != want {
		return ErrForbidden
	}
	return nil
}
