package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aryan0dhankhar/visiongate/pkg/database"
)

// Token delivery modes for the login response
const (
	DeliverBody   = "body"
	DeliverCookie = "cookie"
	DeliverBoth   = "both"
)

// Config holds the application configuration
type Config struct {
	Environment        string
	ServerPort         int
	LogLevel           string
	CORSAllowedOrigins []string

	Database DatabaseConfig

	JWTSecret         string
	TokenTTL          time.Duration
	TokenDelivery     string
	SessionCookieName string
	StoreTimeout      time.Duration

	LoginRateLimit  int
	LoginRateWindow time.Duration
	RedisURL        string

	AnalyzeRequireAuth bool

	Inference InferenceConfig
	Upload    UploadConfig
	Retention RetentionConfig
	Archive   ArchiveConfig
	Tracing   TracingConfig
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// InferenceConfig holds the outbound inference service settings
type InferenceConfig struct {
	BaseURL             string
	ServiceToken        string
	Timeout             time.Duration
	ConfidenceThreshold float64
	MaxObjects          int
	BreakerThreshold    int
	BreakerCooldown     time.Duration
}

// UploadConfig constrains accepted images
type UploadConfig struct {
	Dir          string
	MaxBytes     int64
	AllowedTypes []string
}

// RetentionConfig controls what happens to staged files
type RetentionConfig struct {
	Policy        string
	SweepInterval time.Duration
	MaxAge        time.Duration
}

// ArchiveConfig points at S3-compatible storage for the archive policy
type ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// TracingConfig enables OTLP export when Endpoint is set
type TracingConfig struct {
	Endpoint    string
	SampleRatio float64
}

// weakSecrets are defaults that shipped in earlier deployments and must never sign tokens
var weakSecrets = map[string]bool{
	"change-me-in-production": true,
	"12345www67890":           true,
	"secret":                  true,
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "3000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	db, err := LoadDatabase()
	if err != nil {
		return nil, err
	}

	tokenTTL, err := time.ParseDuration(getEnv("TOKEN_TTL", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	storeTimeout, err := time.ParseDuration(getEnv("STORE_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_TIMEOUT: %w", err)
	}

	loginLimit, err := strconv.Atoi(getEnv("LOGIN_RATE_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_LIMIT: %w", err)
	}

	loginWindow, err := time.ParseDuration(getEnv("LOGIN_RATE_WINDOW", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOGIN_RATE_WINDOW: %w", err)
	}

	requireAuth, err := strconv.ParseBool(getEnv("ANALYZE_REQUIRE_AUTH", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYZE_REQUIRE_AUTH: %w", err)
	}

	inferenceTimeout, err := time.ParseDuration(getEnv("INFERENCE_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_TIMEOUT: %w", err)
	}

	confidence, err := strconv.ParseFloat(getEnv("INFERENCE_CONFIDENCE_THRESHOLD", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_CONFIDENCE_THRESHOLD: %w", err)
	}

	maxObjects, err := strconv.Atoi(getEnv("INFERENCE_MAX_OBJECTS", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_MAX_OBJECTS: %w", err)
	}

	breakerThreshold, err := strconv.Atoi(getEnv("INFERENCE_BREAKER_THRESHOLD", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_BREAKER_THRESHOLD: %w", err)
	}

	breakerCooldown, err := time.ParseDuration(getEnv("INFERENCE_BREAKER_COOLDOWN", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid INFERENCE_BREAKER_COOLDOWN: %w", err)
	}

	maxBytes, err := strconv.ParseInt(getEnv("UPLOAD_MAX_BYTES", "10485760"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_BYTES: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("RETENTION_SWEEP_INTERVAL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION_SWEEP_INTERVAL: %w", err)
	}

	maxAge, err := time.ParseDuration(getEnv("RETENTION_MAX_AGE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION_MAX_AGE: %w", err)
	}

	sampleRatio, err := strconv.ParseFloat(getEnv("OTEL_TRACES_SAMPLE_RATIO", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLE_RATIO: %w", err)
	}

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ServerPort:         port,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:4200"}),
		Database:           db,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           tokenTTL,
		TokenDelivery:      strings.ToLower(getEnv("TOKEN_DELIVERY", DeliverBoth)),
		SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "token"),
		StoreTimeout:       storeTimeout,
		LoginRateLimit:     loginLimit,
		LoginRateWindow:    loginWindow,
		RedisURL:           os.Getenv("REDIS_URL"),
		AnalyzeRequireAuth: requireAuth,
		Inference: InferenceConfig{
			BaseURL:             strings.TrimRight(getEnv("INFERENCE_BASE_URL", "http://localhost:5000"), "/"),
			ServiceToken:        os.Getenv("INFERENCE_SERVICE_TOKEN"),
			Timeout:             inferenceTimeout,
			ConfidenceThreshold: confidence,
			MaxObjects:          maxObjects,
			BreakerThreshold:    breakerThreshold,
			BreakerCooldown:     breakerCooldown,
		},
		Upload: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", "uploads"),
			MaxBytes:     maxBytes,
			AllowedTypes: parseCSVEnv("UPLOAD_ALLOWED_TYPES", []string{"image/jpeg", "image/png", "image/webp"}),
		},
		Retention: RetentionConfig{
			Policy:        strings.ToLower(getEnv("RETENTION_POLICY", "keep")),
			SweepInterval: sweepInterval,
			MaxAge:        maxAge,
		},
		Archive: ArchiveConfig{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio: sampleRatio,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads only the Postgres settings. Admin tools use it without the server secrets.
func LoadDatabase() (DatabaseConfig, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdle, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	autoMigrate, err := strconv.ParseBool(getEnv("DB_AUTO_MIGRATE", "true"))
	if err != nil {
		return DatabaseConfig{}, fmt.Errorf("invalid DB_AUTO_MIGRATE: %w", err)
	}

	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            dbPort,
		User:            getEnv("DB_USER", "postgres"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            getEnv("DB_NAME", "ai_tagging_db"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: connLifetime,
		AutoMigrate:     autoMigrate,
	}, nil
}

// Pool converts the settings for database.NewConnectionPool
func (d DatabaseConfig) Pool() *database.Config {
	return &database.Config{
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Name,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}
}

// Validate rejects configurations the server must not start with
func (c *Config) Validate() error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if weakSecrets[c.JWTSecret] {
		errs = append(errs, errors.New("JWT_SECRET uses a known default value"))
	}
	if c.Inference.ServiceToken == "" {
		errs = append(errs, errors.New("INFERENCE_SERVICE_TOKEN is required"))
	}
	if c.Inference.BaseURL == "" {
		errs = append(errs, errors.New("INFERENCE_BASE_URL is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Inference.Timeout <= 0 {
		errs = append(errs, errors.New("INFERENCE_TIMEOUT must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLE_RATIO must be between 0 and 1"))
	}

	switch c.TokenDelivery {
	case DeliverBody, DeliverCookie, DeliverBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown TOKEN_DELIVERY %q", c.TokenDelivery))
	}

	switch c.Retention.Policy {
	case "keep", "delete":
	case "archive":
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when RETENTION_POLICY=archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RETENTION_POLICY %q", c.Retention.Policy))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the server runs with production hardening
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
