package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
	"github.com/aryan0dhankhar/visiongate/internal/service"
	"github.com/aryan0dhankhar/visiongate/pkg/config"
)

// maxLoginBody bounds the JSON login payload
const maxLoginBody = 16 << 10

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	delivery    string
	cookieName  string
	secure      bool
	errors      errorWriter
	logger      *slog.Logger
}

// AuthHandlerConfig controls how session tokens reach the client
type AuthHandlerConfig struct {
	TokenDelivery string
	CookieName    string
	SecureCookie  bool
	Development   bool
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, cfg AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenDelivery == "" {
		cfg.TokenDelivery = config.DeliverBoth
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "token"
	}

	return &AuthHandler{
		authService: authService,
		delivery:    cfg.TokenDelivery,
		cookieName:  cfg.CookieName,
		secure:      cfg.SecureCookie,
		errors:      errorWriter{development: cfg.Development, logger: logger},
		logger:      logger,
	}
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the token when body delivery is enabled
type LoginResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// MeResponse wraps the caller's public profile
type MeResponse struct {
	Success bool             `json:"success"`
	User    *domain.UserView `json:"user"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.errors.write(w, r, domain.WrapError(domain.ErrValidation, "invalid JSON body", err))
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	resp := LoginResponse{Success: true, Message: "login successful"}
	if h.delivery == config.DeliverBody || h.delivery == config.DeliverBoth {
		resp.Token = result.Token
		resp.ExpiresAt = &result.ExpiresAt
	}
	if h.delivery == config.DeliverCookie || h.delivery == config.DeliverBoth {
		http.SetCookie(w, h.sessionCookie(result.Token, result.ExpiresAt))
	}

	writeJSON(w, http.StatusOK, resp, h.logger)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	user, err := h.authService.Me(r.Context(), identity)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Success: true, User: user}, h.logger)
}

// Logout handles POST /api/auth/logout. Tokens are stateless, so only the cookie is cleared.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "logout successful"}, h.logger)
}

func (h *AuthHandler) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
