package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/handler"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/archive"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/inference"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/visiongate/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/visiongate/internal/observability/tracing"
	"github.com/aryan0dhankhar/visiongate/internal/repository"
	"github.com/aryan0dhankhar/visiongate/internal/security/audit"
	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
	"github.com/aryan0dhankhar/visiongate/internal/security/middleware"
	"github.com/aryan0dhankhar/visiongate/internal/security/ratelimit"
	"github.com/aryan0dhankhar/visiongate/internal/service"
	"github.com/aryan0dhankhar/visiongate/internal/staging"
	"github.com/aryan0dhankhar/visiongate/internal/upload"
	"github.com/aryan0dhankhar/visiongate/internal/worker"
	"github.com/aryan0dhankhar/visiongate/pkg/config"
	"github.com/aryan0dhankhar/visiongate/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting visiongate", slog.String("environment", cfg.Environment))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "visiongate",
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// 3. Database
	pool, err := database.NewConnectionPool(ctx, cfg.Database.Pool(), log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := pool.Migrate(ctx); err != nil {
			return err
		}
	}
	userRepo := repository.NewPostgresUserRepository(pool.GetDB(), log)

	checks := []handler.Check{{Name: "database", Probe: pool.Health}}

	// 4. Optional Redis for the shared login limiter
	var loginLimiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		loginLimiter = ratelimit.NewRedisLimiter(redisClient, cfg.LoginRateLimit, cfg.LoginRateWindow, log)
		checks = append(checks, handler.Check{Name: "redis", Probe: redisClient.Ping})
	} else {
		memLimiter := ratelimit.NewLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
		defer memLimiter.Stop()
		loginLimiter = memLimiter
	}

	// 5. Security components
	tokenManager, err := auth.NewTokenManager(cfg.JWTSecret, "visiongate")
	if err != nil {
		return err
	}
	auditLogger := audit.NewLogger(log)

	// 6. Upload pipeline
	area, err := staging.New(cfg.Upload.Dir)
	if err != nil {
		return err
	}
	intake, err := upload.NewIntake(area, cfg.Upload.MaxBytes, cfg.Upload.AllowedTypes, log)
	if err != nil {
		return err
	}
	inferenceClient, err := inference.NewClient(inference.Config{
		BaseURL:             cfg.Inference.BaseURL,
		ServiceToken:        cfg.Inference.ServiceToken,
		Timeout:             cfg.Inference.Timeout,
		ConfidenceThreshold: cfg.Inference.ConfidenceThreshold,
		MaxObjects:          cfg.Inference.MaxObjects,
		BreakerThreshold:    cfg.Inference.BreakerThreshold,
		BreakerCooldown:     cfg.Inference.BreakerCooldown,
	}, log)
	if err != nil {
		return err
	}
	checks = append(checks, handler.Check{Name: "inference", Probe: inferenceClient.Ping})

	analysisOpts := service.AnalysisOptions{
		Retention: domain.RetentionPolicy(cfg.Retention.Policy),
		Audit:     auditLogger,
	}
	if analysisOpts.Retention == domain.RetainArchive {
		archiver, err := archive.NewS3Archiver(ctx, archive.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		}, log)
		if err != nil {
			return err
		}
		analysisOpts.Archiver = archiver
	}

	// 7. Services
	authService := service.NewAuthService(userRepo, tokenManager, service.AuthOptions{
		TokenTTL:     cfg.TokenTTL,
		StoreTimeout: cfg.StoreTimeout,
		Audit:        auditLogger,
	}, log)
	analysisService, err := service.NewAnalysisService(intake, inferenceClient, area, analysisOpts, log)
	if err != nil {
		return err
	}

	// 8. HTTP surface
	development := cfg.Environment == "development"
	router := handler.NewRouter(handler.RouterDeps{
		Auth: handler.NewAuthHandler(authService, handler.AuthHandlerConfig{
			TokenDelivery: cfg.TokenDelivery,
			CookieName:    cfg.SessionCookieName,
			SecureCookie:  cfg.IsProduction(),
			Development:   development,
		}, log),
		Analyze:            handler.NewAnalyzeHandler(analysisService, development, log),
		Health:             handler.NewHealthHandler(checks, log),
		Gate:               middleware.NewAuthGate(tokenManager, cfg.SessionCookieName, auditLogger, log),
		LoginLimiter:       loginLimiter,
		AnalyzeRequireAuth: cfg.AnalyzeRequireAuth,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             log,
	})

	// 9. Staging sweeper
	sweeper := worker.NewStagingSweeper(area, cfg.Retention.SweepInterval, cfg.Retention.MaxAge, log)
	go sweeper.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           otelhttp.NewHandler(router, "visiongate"),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Inference.Timeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			slog.Int("port", cfg.ServerPort),
			slog.String("retention", cfg.Retention.Policy),
			slog.Bool("analyze_requires_auth", cfg.AnalyzeRequireAuth),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
	return nil
}
