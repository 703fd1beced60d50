package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for every verification failure: expired, forged or malformed
var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the verified caller resolved from a session token
type Identity struct {
	ID       string
	Username string
}

type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity returns the caller carried by the claims
func (c *Claims) Identity() Identity {
	return Identity{ID: c.UserID, Username: c.Username}
}

type TokenManager struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customizes a TokenManager
type Option func(*TokenManager)

// WithClock replaces the time source used for issuing and verifying
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

var knownDefaultSecrets = []string{"change-me-in-production", "12345www67890"}

// NewTokenManager refuses to run without a real signing secret
func NewTokenManager(secret, issuer string, opts ...Option) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	for _, weak := range knownDefaultSecrets {
		if secret == weak {
			return nil, errors.New("token signing secret uses a known default value")
		}
	}
	if issuer == "" {
		issuer = "visiongate"
	}
	tm := &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Issue signs a token for identity valid for ttl
func (tm *TokenManager) Issue(identity Identity, ttl time.Duration) (string, time.Time, error) {
	if identity.ID == "" || identity.Username == "" {
		return "", time.Time{}, fmt.Errorf("user id and username required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive")
	}
	now := tm.now().Truncate(time.Second)
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:   identity.ID,
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, issuer and expiry. Any failure is ErrInvalidToken.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractToken returns the credential of a "Bearer <token>" header
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
