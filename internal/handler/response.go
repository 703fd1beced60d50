package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/requestctx"
)

// ErrorResponse is the uniform failure envelope
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// MessageResponse is a success envelope without payload
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// errorWriter maps tagged errors to HTTP responses. It is the only place statuses are chosen for failures.
type errorWriter struct {
	development bool
	logger      *slog.Logger
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (ew errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	message := "internal server error"
	var derr *domain.Error
	if errors.As(err, &derr) {
		message = derr.Message
	}

	attrs := []any{
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", requestctx.RequestID(r.Context())),
		slog.String("error", err.Error()),
	}
	if status >= http.StatusInternalServerError {
		ew.logger.Error("request failed", attrs...)
	} else {
		ew.logger.Info("request rejected", attrs...)
	}

	resp := ErrorResponse{Success: false, Message: message}
	if ew.development {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp, ew.logger)
}

// NotFound answers unknown routes
func NotFound(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Success: false, Message: "Route not found"}, logger)
	}
}
