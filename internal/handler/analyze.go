package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
	"github.com/aryan0dhankhar/visiongate/internal/service"
)

// AnalyzeHandler handles image analysis requests
type AnalyzeHandler struct {
	analysis *service.AnalysisService
	errors   errorWriter
	logger   *slog.Logger
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(analysis *service.AnalysisService, development bool, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyzeHandler{
		analysis: analysis,
		errors:   errorWriter{development: development, logger: logger},
		logger:   logger,
	}
}

// Analyze handles POST /api/analyze
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	report, err := h.analysis.Analyze(w, r)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	h.logger.Debug("analysis served",
		slog.String("image_id", report.ImageID),
		slog.String("user_id", identity.ID),
	)
	writeJSON(w, http.StatusOK, report, h.logger)
}
