package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/observability/metrics"
	"github.com/aryan0dhankhar/visiongate/internal/security/audit"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
)

// bcrypt ignores input past 72 bytes
const maxPasswordBytes = 72

// AuthService handles credential checks and session issuance
type AuthService struct {
	userRepo     domain.UserRepository
	tokens       *auth.TokenManager
	tokenTTL     time.Duration
	storeTimeout time.Duration
	audit        *audit.Logger
	logger       *slog.Logger
	now          func() time.Time
}

// AuthOptions tunes an AuthService
type AuthOptions struct {
	TokenTTL     time.Duration
	StoreTimeout time.Duration
	Audit        *audit.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	tokens *auth.TokenManager,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger(logger)
	}

	return &AuthService{
		userRepo:     userRepo,
		tokens:       tokens,
		tokenTTL:     opts.TokenTTL,
		storeTimeout: opts.StoreTimeout,
		audit:        opts.Audit,
		logger:       logger,
		now:          time.Now,
	}
}

// LoginResult is a freshly issued session
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.UserView
}

var errInvalidCredentials = domain.NewError(domain.ErrUnauthenticated, "invalid credentials")

// Login verifies a username/password pair and issues a session token.
// Unknown users, wrong passwords and inactive accounts are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		metrics.ObserveLogin("invalid_request")
		return nil, domain.NewError(domain.ErrValidation, "username and password are required")
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	user, err := s.userRepo.FindByUsername(storeCtx, username)
	cancel()
	if err != nil {
		metrics.ObserveLogin("error")
		s.logger.Error("failed to look up user",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return nil, domain.WrapError(domain.ErrInternal, "login failed", err)
	}

	if user == nil {
		auth.BurnPasswordCheck(password)
		return nil, s.rejectLogin(ctx, username, "", "unknown_user")
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, s.rejectLogin(ctx, username, user.ID, "wrong_password")
	}
	if !user.IsActive {
		return nil, s.rejectLogin(ctx, username, user.ID, "inactive")
	}

	token, expiresAt, err := s.tokens.Issue(auth.Identity{ID: user.ID, Username: user.Username}, s.tokenTTL)
	if err != nil {
		metrics.ObserveLogin("error")
		s.logger.Error("failed to issue token",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, domain.WrapError(domain.ErrInternal, "login failed", err)
	}

	loginAt := s.now().UTC()
	storeCtx, cancel = context.WithTimeout(ctx, s.storeTimeout)
	if err := s.userRepo.RecordLogin(storeCtx, user.ID, loginAt); err != nil {
		s.logger.Warn("failed to record last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLoginAt = &loginAt
	}
	cancel()

	metrics.ObserveLogin("success")
	s.audit.LogLogin(ctx, user.Username, user.ID, "success")
	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user.View()}, nil
}

func (s *AuthService) rejectLogin(ctx context.Context, username, userID, reason string) error {
	metrics.ObserveLogin("invalid_credentials")
	s.audit.LogLogin(ctx, username, userID, "invalid_credentials")
	s.logger.Info("login rejected",
		slog.String("username", username),
		slog.String("reason", reason),
	)
	return errInvalidCredentials
}

// Me returns the current record of the authenticated caller
func (s *AuthService) Me(ctx context.Context, identity auth.Identity) (*domain.UserView, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.userRepo.FindByID(storeCtx, identity.ID)
	if err != nil {
		s.logger.Error("failed to load user",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return nil, domain.WrapError(domain.ErrInternal, "could not load user", err)
	}
	if user == nil {
		return nil, domain.NewError(domain.ErrNotFound, "user not found")
	}
	view := user.View()
	return &view, nil
}

// CreateUser provisions an active account. Used by the admin tool.
func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*domain.UserView, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.NewError(domain.ErrValidation, "username is required")
	}
	if password == "" {
		return nil, domain.NewError(domain.ErrValidation, "password is required")
	}
	if len(password) > maxPasswordBytes {
		return nil, domain.NewError(domain.ErrValidation, "password must be at most 72 bytes")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInternal, "failed to hash password", err)
	}

	user := &domain.User{Username: username, PasswordHash: hash, IsActive: true}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.userRepo.Create(storeCtx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.WrapError(domain.ErrConflict, "username already taken", err)
		}
		return nil, domain.WrapError(domain.ErrInternal, "failed to create user", err)
	}

	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("username", user.Username))
	view := user.View()
	return &view, nil
}
