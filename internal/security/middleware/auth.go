package middleware

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/visiongate/internal/requestctx"
	"github.com/aryan0dhankhar/visiongate/internal/security/audit"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
)

// IdentityHandler serves a request on behalf of a verified caller
type IdentityHandler func(w http.ResponseWriter, r *http.Request, identity auth.Identity)

// AuthGate resolves the session token of protected routes
type AuthGate struct {
	tokens     *auth.TokenManager
	cookieName string
	audit      *audit.Logger
	logger     *slog.Logger
}

func NewAuthGate(tokens *auth.TokenManager, cookieName string, auditLog *audit.Logger, logger *slog.Logger) *AuthGate {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthGate{tokens: tokens, cookieName: cookieName, audit: auditLog, logger: logger}
}

// Protect rejects requests without a token (401) or with an invalid one (403)
func (g *AuthGate) Protect(next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := g.extract(r)
		if token == "" {
			g.audit.LogDenied(r.Context(), "missing token")
			writeJSONError(w, http.StatusUnauthorized, "authentication required: token missing")
			return
		}

		claims, err := g.tokens.Verify(token)
		if err != nil {
			g.audit.LogDenied(r.Context(), "invalid token")
			writeJSONError(w, http.StatusForbidden, "invalid or expired token")
			return
		}

		identity := claims.Identity()
		ctx := requestctx.WithIdentity(r.Context(), identity)
		next(w, r.WithContext(ctx), identity)
	})
}

// Anonymous serves next without authentication, passing the zero Identity
func (g *AuthGate) Anonymous(next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r, auth.Identity{})
	})
}

// extract prefers a Bearer header and falls back to the session cookie
func (g *AuthGate) extract(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, err := auth.ExtractToken(header); err == nil {
			return token
		}
	}
	if cookie, err := r.Cookie(g.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}
