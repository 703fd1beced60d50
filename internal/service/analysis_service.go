package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/featureflags"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/inference"
	"github.com/aryan0dhankhar/visiongate/internal/observability/metrics"
	"github.com/aryan0dhankhar/visiongate/internal/observability/tracing"
	"github.com/aryan0dhankhar/visiongate/internal/security/audit"
)

// FlagExposeUpstreamErrors shows the inference failure reason to callers when enabled
const FlagExposeUpstreamErrors = "expose_upstream_errors"

const defaultModelVersion = "unknown"

// Analysis request states
const (
	StateReceived   = "received"
	StateStaged     = "staged"
	StateDispatched = "dispatched"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// UploadIntake stages the image carried by a request
type UploadIntake interface {
	Accept(w http.ResponseWriter, r *http.Request) (*domain.UploadedAsset, error)
}

// Analyzer sends a staged file to the inference service
type Analyzer interface {
	Analyze(ctx context.Context, stagedPath string) inference.Outcome
}

// StagingRemover deletes staged files
type StagingRemover interface {
	Remove(path string) error
}

// Archiver copies a staged file to long-term storage
type Archiver interface {
	Archive(ctx context.Context, asset *domain.UploadedAsset) (string, error)
}

// AnalysisService runs the upload, inference and cleanup workflow for one request
type AnalysisService struct {
	intake   UploadIntake
	analyzer Analyzer
	staging  StagingRemover
	archiver Archiver
	policy   domain.RetentionPolicy
	audit    *audit.Logger
	logger   *slog.Logger
	now      func() time.Time
}

// AnalysisOptions configures retention and auditing
type AnalysisOptions struct {
	Retention domain.RetentionPolicy
	Archiver  Archiver
	Audit     *audit.Logger
}

// NewAnalysisService creates a new analysis orchestrator
func NewAnalysisService(
	intake UploadIntake,
	analyzer Analyzer,
	staging StagingRemover,
	opts AnalysisOptions,
	logger *slog.Logger,
) (*AnalysisService, error) {
	if intake == nil || analyzer == nil || staging == nil {
		return nil, errors.New("intake, analyzer and staging are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Retention == "" {
		opts.Retention = domain.RetainKeep
	}
	if !opts.Retention.Valid() {
		return nil, errors.New("unknown retention policy: " + string(opts.Retention))
	}
	if opts.Retention == domain.RetainArchive && opts.Archiver == nil {
		return nil, errors.New("archive retention requires an archiver")
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger(logger)
	}

	return &AnalysisService{
		intake:   intake,
		analyzer: analyzer,
		staging:  staging,
		archiver: opts.Archiver,
		policy:   opts.Retention,
		audit:    opts.Audit,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Analyze stages the uploaded image, dispatches it and shapes the report.
// A failed analysis never leaves the staged file behind.
func (s *AnalysisService) Analyze(w http.ResponseWriter, r *http.Request) (*domain.AnalysisReport, error) {
	ctx, span := tracing.Tracer().Start(r.Context(), "analysis.run")
	defer span.End()
	r = r.WithContext(ctx)

	span.AddEvent(StateReceived)
	asset, err := s.intake.Accept(w, r)
	if err != nil {
		s.fail(ctx, span, "", "rejected_upload", 0, err)
		return nil, err
	}
	accepted := s.now()
	span.AddEvent(StateStaged, trace.WithAttributes(
		attribute.String("image.id", asset.ID),
		attribute.Int64("image.size", asset.Size),
		attribute.String("image.type", asset.MimeType),
	))

	span.AddEvent(StateDispatched)
	outcome := s.analyzer.Analyze(ctx, asset.Path)
	if outcome.Kind != inference.OutcomeSuccess {
		s.cleanup(asset, "failure")
		upstreamErr := s.upstreamError(outcome)
		s.fail(ctx, span, asset.ID, outcome.Kind.String(), s.now().Sub(accepted), upstreamErr)
		return nil, upstreamErr
	}

	report := shapeReport(asset, outcome.Result)
	elapsed := s.now().Sub(accepted)
	report.ProcessingTimeMS = elapsed.Milliseconds()

	s.retain(ctx, asset)

	span.AddEvent(StateCompleted, trace.WithAttributes(attribute.Int("objects.total", report.Analysis.TotalObjects)))
	metrics.ObserveAnalysis(StateCompleted, "", elapsed)
	s.audit.LogAnalysis(ctx, asset.ID, StateCompleted, "")
	s.logger.Info("analysis completed",
		slog.String("image_id", asset.ID),
		slog.Int("total_objects", report.Analysis.TotalObjects),
		slog.Int64("processing_time_ms", report.ProcessingTimeMS),
	)
	return report, nil
}

func (s *AnalysisService) fail(ctx context.Context, span trace.Span, imageID, reason string, elapsed time.Duration, err error) {
	span.AddEvent(StateFailed, trace.WithAttributes(attribute.String("failure.reason", reason)))
	span.SetStatus(codes.Error, reason)
	metrics.ObserveAnalysis(StateFailed, reason, elapsed)
	s.audit.LogAnalysis(ctx, imageID, StateFailed, reason)
	s.logger.Warn("analysis failed",
		slog.String("image_id", imageID),
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
}

func (s *AnalysisService) upstreamError(outcome inference.Outcome) error {
	cause := errors.New(outcome.Reason)
	if featureflags.Enabled(FlagExposeUpstreamErrors) {
		return domain.WrapError(domain.ErrUpstream, outcome.Reason, cause)
	}
	if outcome.Kind == inference.OutcomeUnreachable {
		return domain.WrapError(domain.ErrUpstream, "image analysis service is unavailable", cause)
	}
	return domain.WrapError(domain.ErrUpstream, "image analysis failed", cause)
}

func (s *AnalysisService) retain(ctx context.Context, asset *domain.UploadedAsset) {
	switch s.policy {
	case domain.RetainDelete:
		s.cleanup(asset, "retention")
	case domain.RetainArchive:
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := s.archiver.Archive(archiveCtx, asset); err != nil {
			metrics.ObserveArchive("error")
			s.logger.Error("failed to archive staged file",
				slog.String("image_id", asset.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		metrics.ObserveArchive("success")
		s.cleanup(asset, "archive")
	}
}

// cleanup runs regardless of request cancellation; failures are logged and counted only
func (s *AnalysisService) cleanup(asset *domain.UploadedAsset, source string) {
	if err := s.staging.Remove(asset.Path); err != nil {
		metrics.ObserveCleanup(source, "error")
		s.logger.Error("failed to remove staged file",
			slog.String("image_id", asset.ID),
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.ObserveCleanup(source, "success")
}

func shapeReport(asset *domain.UploadedAsset, result *domain.AnalysisResult) *domain.AnalysisReport {
	summary := domain.AnalysisSummary{
		ObjectCounts: map[string]int{},
		Keywords:     []string{},
	}
	modelVersion := defaultModelVersion
	if result != nil {
		if result.ObjectCounts != nil {
			summary.ObjectCounts = result.ObjectCounts
		}
		if result.Keywords != nil {
			summary.Keywords = result.Keywords
		}
		summary.TotalObjects = result.TotalObjects
		summary.Confidence = result.Confidence
		if result.ModelVersion != "" {
			modelVersion = result.ModelVersion
		}
	}

	return &domain.AnalysisReport{
		Success:      true,
		ImageID:      asset.ID,
		Filename:     asset.OriginalFilename,
		SizeBytes:    asset.Size,
		UploadedAt:   asset.UploadedAt,
		Analysis:     summary,
		ModelVersion: modelVersion,
	}
}
