package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/inference"
	"github.com/aryan0dhankhar/visiongate/internal/repository"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
	"github.com/aryan0dhankhar/visiongate/internal/security/middleware"
	"github.com/aryan0dhankhar/visiongate/internal/service"
	"github.com/aryan0dhankhar/visiongate/internal/staging"
	"github.com/aryan0dhankhar/visiongate/internal/upload"
	"github.com/aryan0dhankhar/visiongate/pkg/config"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{7}, 512)...)

type apiFixture struct {
	handler http.Handler
	repo    *repository.MemoryUserRepository
	area    *staging.Area
	alice   *domain.User
}

type fixtureOptions struct {
	inferenceURL string
	delivery     string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeInference(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":"bad service token"}`)
			return
		}
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"success":true,"object_counts":{"dog":1},"keywords":["dog"],"total_objects":1,"confidence":0.8,"model_version":"test-model"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAPIFixture(t *testing.T, opts fixtureOptions) *apiFixture {
	t.Helper()
	log := quietLogger()

	repo := repository.NewMemoryUserRepository()
	hash, err := auth.HashPassword("s3cret-pass")
	require.NoError(t, err)
	alice := &domain.User{Username: "alice", PasswordHash: hash, IsActive: true}
	require.NoError(t, repo.Create(context.Background(), alice))

	tokens, err := auth.NewTokenManager("router-test-secret", "visiongate")
	require.NoError(t, err)
	authSvc := service.NewAuthService(repo, tokens, service.AuthOptions{TokenTTL: 7 * 24 * time.Hour}, log)

	area, err := staging.New(t.TempDir())
	require.NoError(t, err)
	intake, err := upload.NewIntake(area, 1<<20, []string{"image/jpeg", "image/png", "image/webp"}, log)
	require.NoError(t, err)

	if opts.inferenceURL == "" {
		opts.inferenceURL = fakeInference(t).URL
	}
	client, err := inference.NewClient(inference.Config{
		BaseURL:      opts.inferenceURL,
		ServiceToken: "svc-token",
		Timeout:      2 * time.Second,
	}, log)
	require.NoError(t, err)

	analysis, err := service.NewAnalysisService(intake, client, area, service.AnalysisOptions{}, log)
	require.NoError(t, err)

	gate := middleware.NewAuthGate(tokens, "token", nil, log)
	h := NewRouter(RouterDeps{
		Auth:               NewAuthHandler(authSvc, AuthHandlerConfig{TokenDelivery: opts.delivery}, log),
		Analyze:            NewAnalyzeHandler(analysis, false, log),
		Health:             NewHealthHandler([]Check{{Name: "inference", Probe: client.Ping}}, log),
		Gate:               gate,
		AnalyzeRequireAuth: true,
		Logger:             log,
	})

	return &apiFixture{handler: h, repo: repo, area: area, alice: alice}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req)
}

func (f *apiFixture) token(t *testing.T) string {
	t.Helper()
	rec := f.login(t, "alice", "s3cret-pass")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func imageUpload(t *testing.T, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func stagedCount(t *testing.T, area *staging.Area) int {
	t.Helper()
	entries, err := os.ReadDir(area.Root())
	require.NoError(t, err)
	return len(entries)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "visiongate", body["service"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestReadyz(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])

	down := newAPIFixture(t, fixtureOptions{inferenceURL: "http://127.0.0.1:1"})
	rec = down.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Route not found", body["message"])
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	rec := f.login(t, "alice", "s3cret-pass")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, body["expiresAt"])

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.InDelta(t, 7*24*3600, cookie.MaxAge, 5)

	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")
	me := decode(t, rec)
	user, ok := me["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, f.alice.ID, user["id"])
	assert.Equal(t, true, user["isActive"])
	assert.NotNil(t, user["lastLoginAt"])

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: cookie.Value})
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "token", cleared[0].Name)
	assert.Less(t, cleared[0].MaxAge, 0)

	// tokens are stateless: logout does not revoke a token the client kept
	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenDeliveryModes(t *testing.T) {
	cookieOnly := newAPIFixture(t, fixtureOptions{delivery: config.DeliverCookie})
	rec := cookieOnly.login(t, "alice", "s3cret-pass")
	require.Equal(t, http.StatusOK, rec.Code)
	_, hasToken := decode(t, rec)["token"]
	assert.False(t, hasToken)
	assert.NotEmpty(t, rec.Result().Cookies())

	bodyOnly := newAPIFixture(t, fixtureOptions{delivery: config.DeliverBody})
	rec = bodyOnly.login(t, "alice", "s3cret-pass")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["token"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginFailures(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	rec := f.login(t, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	wrongPassword := decode(t, rec)["message"]

	rec = f.login(t, "mallory", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrongPassword, decode(t, rec)["message"])

	rec = f.login(t, "alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":`))
	req.Header.Set("Content-Type", "application/json")
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestMeRejections(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), "garbage"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	token := f.token(t)
	f.repo.Delete(f.alice.ID)
	rec = f.do(bearer(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), token))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	token := f.token(t)

	rec := f.do(imageUpload(t, "dog.png", "image/png", pngBytes))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(bearer(imageUpload(t, "dog.png", "image/png", pngBytes), token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["image_id"])
	assert.Equal(t, "dog.png", body["filename"])
	assert.EqualValues(t, len(pngBytes), body["size_bytes"])
	assert.NotEmpty(t, body["uploaded_at"])
	assert.Equal(t, "test-model", body["model_version"])
	assert.Contains(t, body, "processing_time_ms")

	analysis, ok := body["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"dog": float64(1)}, analysis["object_counts"])
	assert.Equal(t, []any{"dog"}, analysis["keywords"])
	assert.EqualValues(t, 1, analysis["total_objects"])
	assert.InDelta(t, 0.8, analysis["confidence"], 1e-9)
}

func TestAnalyzeRejectsDisguisedText(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	token := f.token(t)

	rec := f.do(bearer(imageUpload(t, "evil.jpg", "image/jpeg", []byte("plain text pretending to be a photo")), token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
	assert.Zero(t, stagedCount(t, f.area))
}

func TestAnalyzeMissingImage(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	token := f.token(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(bearer(req, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeInferenceUnreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	f := newAPIFixture(t, fixtureOptions{inferenceURL: deadURL})
	token := f.token(t)

	rec := f.do(bearer(imageUpload(t, "dog.png", "image/png", pngBytes), token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "image analysis service is unavailable", body["message"])
	_, hasDetail := body["detail"]
	assert.False(t, hasDetail)
	assert.Zero(t, stagedCount(t, f.area))
}
