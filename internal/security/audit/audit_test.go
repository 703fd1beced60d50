package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/visiongate/internal/requestctx"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
)

func TestLogActionIncludesCallerAndRequest(t *testing.T) {
	var buf bytes.Buffer
	al := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx := requestctx.WithRequestID(context.Background(), "req-1")
	ctx = requestctx.WithIdentity(ctx, auth.Identity{ID: "u-1", Username: "alice"})
	al.LogAnalysis(ctx, "img-9", "completed", "")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "audit", rec["channel"])
	assert.Equal(t, "analyze", rec["action"])
	assert.Equal(t, "img-9", rec["resource_id"])
	assert.Equal(t, "u-1", rec["user_id"])
	assert.Equal(t, "alice", rec["username"])
	assert.Equal(t, "req-1", rec["request_id"])
}

func TestLogLoginWithoutIdentity(t *testing.T) {
	var buf bytes.Buffer
	al := NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	al.LogLogin(context.Background(), "mallory", "", "invalid_credentials")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "login", rec["action"])
	assert.Equal(t, "mallory", rec["username"])
	assert.Equal(t, "", rec["request_id"])
}
