package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmr-leaderboard/internal/config"
	"github.com/jmr-leaderboard/internal/metrics"
)

// Sweeper removes staged uploads that were never promoted or discarded
type Sweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Janitor periodically reclaims abandoned replay uploads
type Janitor struct {
	sweeper    Sweeper
	interval   time.Duration
	staleAfter time.Duration
	metrics    *metrics.Manager
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewJanitor creates a new janitor
func NewJanitor(sweeper Sweeper, cfg *config.ReplayConfig, m *metrics.Manager, logger *slog.Logger) *Janitor {
	return &Janitor{
		sweeper:    sweeper,
		interval:   cfg.JanitorInterval,
		staleAfter: cfg.StaleAfter,
		metrics:    m,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true

	j.logger.Info("replay janitor started", "interval", j.interval, "stale_after", j.staleAfter)
	go j.run(ctx)
}

// Stop stops the loop and waits for an in-flight sweep
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.mu.Unlock()

	close(j.stopCh)
	<-j.doneCh
	j.logger.Info("replay janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep
func (j *Janitor) RunOnce(ctx context.Context) int {
	removed, err := j.sweeper.SweepStale(ctx, j.staleAfter)
	j.metrics.ObserveStaleSwept(removed)
	if err != nil {
		j.logger.Error("replay sweep failed", "removed", removed, "error", err)
		return removed
	}
	if removed > 0 {
		j.logger.Info("removed stale replay uploads", "count", removed)
	}
	return removed
}
