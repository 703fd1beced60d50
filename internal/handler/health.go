package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/aryan0dhankhar/visiongate/pkg/cache"
)

const (
	serviceName    = "visiongate"
	readinessTTL   = 5 * time.Second
	readinessLimit = 3 * time.Second
)

// Check probes one dependency
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks []Check
	cache  *cache.Cache[ReadinessResponse]
	now    func() time.Time
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks []Check, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		checks: checks,
		cache:  cache.New[ReadinessResponse](),
		now:    time.Now,
		logger: logger,
	}
}

// HealthResponse represents the liveness response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: h.now().UTC(),
	}, h.logger)
}

// Ready handles GET /readyz. Results are cached briefly so probes do not hammer dependencies.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := h.cache.Remember("readyz", readinessTTL, func() ReadinessResponse {
		return h.probe(r.Context())
	})

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp, h.logger)
}

func (h *HealthHandler) probe(ctx context.Context) ReadinessResponse {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readinessLimit)
	defer cancel()

	resp := ReadinessResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			resp.Status = "not_ready"
			resp.Checks[c.Name] = "error: " + err.Error()
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := []any{slog.String("status", resp.Status)}
	for _, name := range names {
		attrs = append(attrs, slog.String(name, resp.Checks[name]))
	}
	h.logger.Info("readiness check", attrs...)
	return resp
}
