package handler

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aryan0dhankhar/visiongate/internal/observability/metrics"
	"github.com/aryan0dhankhar/visiongate/internal/security/middleware"
	"github.com/aryan0dhankhar/visiongate/internal/security/ratelimit"
)

// RouterDeps wires the HTTP surface
type RouterDeps struct {
	Auth               *AuthHandler
	Analyze            *AnalyzeHandler
	Health             *HealthHandler
	Gate               *middleware.AuthGate
	LoginLimiter       ratelimit.RateLimiter
	AnalyzeRequireAuth bool
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter builds the API handler.
// Chain: request id -> recover -> CORS -> metrics -> mux.
func NewRouter(d RouterDeps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	login := middleware.ValidateJSONContentType(log)(http.HandlerFunc(d.Auth.Login))
	if d.LoginLimiter != nil {
		login = middleware.RateLimit(d.LoginLimiter, "login", log)(login)
	}

	analyze := d.Gate.Anonymous(d.Analyze.Analyze)
	if d.AnalyzeRequireAuth {
		analyze = d.Gate.Protect(d.Analyze.Analyze)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/auth/login", login)
	mux.Handle("GET /api/auth/me", d.Gate.Protect(d.Auth.Me))
	mux.HandleFunc("POST /api/auth/logout", d.Auth.Logout)
	mux.Handle("POST /api/analyze", analyze)
	mux.HandleFunc("GET /health", d.Health.Health)
	mux.HandleFunc("GET /readyz", d.Health.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", NotFound(log))

	var h http.Handler = metrics.HTTPMetricsMiddleware(mux)
	h = middleware.CORS(d.CORSAllowedOrigins)(h)
	h = middleware.Recover(log)(h)
	h = middleware.RequestID(log)(h)
	return h
}
