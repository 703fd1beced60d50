package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
	"github.com/aryan0dhankhar/visiongate/internal/observability/metrics"
	"github.com/aryan0dhankhar/visiongate/internal/reliability/circuitbreaker"
)

// maxResponseBytes bounds how much of an inference response is read
const maxResponseBytes = 1 << 20

const (
	reasonInvalidResponse = "invalid response from inference service"
	reasonRejected        = "inference service returned an error"
	reasonAnalysisFailed  = "image analysis failed"
	reasonUnreachable     = "inference service is unreachable"
	reasonTimeout         = "inference service timed out"
	reasonCancelled       = "request cancelled before analysis finished"
	reasonCircuitOpen     = "inference service circuit open"
)

// OutcomeKind classifies a call to the inference service
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeUpstreamRejected
	OutcomeUnreachable
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeUpstreamRejected:
		return "upstream_rejected"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of Analyze: Result is set on success, Reason otherwise
type Outcome struct {
	Kind   OutcomeKind
	Result *domain.AnalysisResult
	Reason string
}

func rejected(reason string) Outcome    { return Outcome{Kind: OutcomeUpstreamRejected, Reason: reason} }
func unreachable(reason string) Outcome { return Outcome{Kind: OutcomeUnreachable, Reason: reason} }

// Config holds inference client settings
type Config struct {
	BaseURL             string
	ServiceToken        string
	Timeout             time.Duration
	ConfidenceThreshold float64
	MaxObjects          int
	BreakerThreshold    int
	BreakerCooldown     time.Duration
}

// Client calls the external inference service
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a new inference client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("inference base url is required")
	}
	if cfg.ServiceToken == "" {
		return nil, errors.New("inference service token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.5
	}
	if cfg.MaxObjects <= 0 {
		cfg.MaxObjects = 50
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.NewCircuitBreaker(cfg.BreakerThreshold, 1, cfg.BreakerCooldown)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerOpen(to == circuitbreaker.StateOpen)
		logger.Warn("inference circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker:    breaker,
		logger:     logger,
	}, nil
}

// Analyze sends the staged file for analysis. It never returns a Go error: every failure is an Outcome.
func (c *Client) Analyze(ctx context.Context, stagedPath string) Outcome {
	start := time.Now()
	outcome := c.analyze(ctx, stagedPath)
	metrics.ObserveInference(outcome.Kind.String(), time.Since(start))

	logger := c.logger.With(
		slog.String("path", filepath.Base(stagedPath)),
		slog.String("outcome", outcome.Kind.String()),
		slog.Duration("duration", time.Since(start)),
	)
	if outcome.Kind == OutcomeSuccess {
		logger.Info("inference completed", slog.Int("total_objects", outcome.Result.TotalObjects))
	} else {
		logger.Warn("inference failed", slog.String("reason", outcome.Reason))
	}
	return outcome
}

func (c *Client) analyze(ctx context.Context, stagedPath string) Outcome {
	if !c.breaker.AllowRequest() {
		return unreachable(reasonCircuitOpen)
	}

	file, err := os.Open(stagedPath)
	if err != nil {
		c.logger.Error("failed to open staged file", slog.String("error", err.Error()))
		return unreachable("staged file is unavailable")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, contentType := c.encode(file, filepath.Base(stagedPath))
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.cfg.BaseURL+"/process", body)
	if err != nil {
		body.Close()
		return unreachable(reasonUnreachable)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// caller cancellation does not count against the breaker
			return unreachable(reasonCancelled)
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			c.breaker.RecordFailure()
			return unreachable(reasonTimeout)
		default:
			c.breaker.RecordFailure()
			c.logger.Debug("inference transport error", slog.String("error", err.Error()))
			return unreachable(reasonUnreachable)
		}
	}
	defer resp.Body.Close()
	c.breaker.RecordSuccess()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return unreachable(reasonCancelled)
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return unreachable(reasonTimeout)
		}
		return rejected(reasonInvalidResponse)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload wireResponse
		if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
			return rejected(payload.Error)
		}
		return rejected(fmt.Sprintf("%s (status %d)", reasonRejected, resp.StatusCode))
	}

	var payload wireResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return rejected(reasonInvalidResponse)
	}
	// only an explicit success counts; a missing or null flag is a failed analysis
	if payload.Success == nil || !*payload.Success {
		if payload.Error != "" {
			return rejected(payload.Error)
		}
		return rejected(reasonAnalysisFailed)
	}
	return Outcome{Kind: OutcomeSuccess, Result: payload.toResult()}
}

// encode streams the multipart request body from the file without buffering it in memory
func (c *Client) encode(file *os.File, name string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer file.Close()
		err := func() error {
			if err := mw.WriteField("confidence_threshold", strconv.FormatFloat(c.cfg.ConfidenceThreshold, 'f', -1, 64)); err != nil {
				return err
			}
			if err := mw.WriteField("max_objects", strconv.Itoa(c.cfg.MaxObjects)); err != nil {
				return err
			}

			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, name))
			ct := mime.TypeByExtension(filepath.Ext(name))
			if ct == "" {
				ct = "application/octet-stream"
			}
			h.Set("Content-Type", ct)

			part, err := mw.CreatePart(h)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

// Ping checks the inference service health endpoint
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.ServiceToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("inference health check: status %d", resp.StatusCode)
	}
	return nil
}

// BreakerState reports the circuit breaker state
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.GetState()
}
