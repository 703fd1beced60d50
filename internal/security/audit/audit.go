package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/requestctx"
)

type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("channel", "audit")), now: time.Now}
}

// LogAction writes one audit record. The acting user comes from the request context when authenticated.
func (al *Logger) LogAction(ctx context.Context, action, resource, resourceID, status, details string) {
	userID, username := "", ""
	if identity, ok := requestctx.Identity(ctx); ok {
		userID, username = identity.ID, identity.Username
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("username", username),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestctx.RequestID(ctx)),
		slog.Time("timestamp", al.now().UTC()),
	)
}

// LogLogin records a login attempt. The username is the one submitted, which may not exist.
func (al *Logger) LogLogin(ctx context.Context, username, userID, status string) {
	al.logger.Info("audit",
		slog.String("action", "login"),
		slog.String("resource", "session"),
		slog.String("user_id", userID),
		slog.String("username", username),
		slog.String("status", status),
		slog.String("request_id", requestctx.RequestID(ctx)),
		slog.Time("timestamp", al.now().UTC()),
	)
}

func (al *Logger) LogAnalysis(ctx context.Context, imageID, status, details string) {
	al.LogAction(ctx, "analyze", "image", imageID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, reason string) {
	al.LogAction(ctx, "access_denied", "api", "", "denied", reason)
}
