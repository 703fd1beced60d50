package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/visiongate/internal/observability/metrics"
)

// Sweeper removes staged files last modified before a cutoff
type Sweeper interface {
	Sweep(cutoff time.Time) (int, error)
}

// StagingSweeper periodically deletes staged images older than maxAge.
// It collects orphans left by crashes and files retained under the keep policy.
type StagingSweeper struct {
	area     Sweeper
	logger   *slog.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// NewStagingSweeper creates a new sweeper
func NewStagingSweeper(area Sweeper, interval, maxAge time.Duration, logger *slog.Logger) *StagingSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &StagingSweeper{
		area:     area,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled. A zero maxAge or interval disables it.
func (w *StagingSweeper) Start(ctx context.Context) {
	if w.maxAge <= 0 || w.interval <= 0 {
		w.logger.Info("staging sweeper disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("staging sweeper started",
		slog.Duration("interval", w.interval),
		slog.Duration("max_age", w.maxAge),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("staging sweeper stopped")
			return
		case <-ticker.C:
			w.SweepOnce()
		}
	}
}

// SweepOnce removes every staged file older than maxAge and returns the count
func (w *StagingSweeper) SweepOnce() int {
	cutoff := w.now().Add(-w.maxAge)
	removed, err := w.area.Sweep(cutoff)
	if removed > 0 {
		metrics.ObserveCleanup("sweeper", "success")
		w.logger.Info("staged files swept",
			slog.Int("removed", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	if err != nil {
		metrics.ObserveCleanup("sweeper", "error")
		w.logger.Error("staging sweep incomplete", slog.String("error", err.Error()))
	}
	return removed
}
