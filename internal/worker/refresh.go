package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mintup-social/internal/config"
	"github.com/mintup-social/internal/domain"
)

// Refresher rebuilds and publishes one community's leaderboard snapshot
type Refresher interface {
	RefreshLeaderboard(ctx context.Context, communityID string, now time.Time) (*domain.LeaderboardResult, error)
	ListCommunities(ctx context.Context) ([]domain.Community, error)
}

// RefreshWorker periodically rebuilds every community's leaderboard snapshot
// so subscribers see fresh rankings even without check-in traffic. Connection
// records are deliberately left alone: token expiry is enforced lazily at
// confirm time, never by this worker.
type RefreshWorker struct {
	refresher Refresher
	config    *config.RefreshConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(refresher Refresher, cfg *config.RefreshConfig, logger *slog.Logger) *RefreshWorker {
	return &RefreshWorker{
		refresher: refresher,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background refresh process
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("refresh worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *RefreshWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("refresh worker stopped")
	return nil
}

// run is the main worker loop
func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll rebuilds the snapshot of every community
func (w *RefreshWorker) refreshAll(ctx context.Context) {
	w.logger.Info("starting refresh cycle")
	startTime := time.Now()

	communities, err := w.refresher.ListCommunities(ctx)
	if err != nil {
		w.logger.Error("failed to list communities for refresh", "error", err)
		return
	}

	refreshedCount := 0
	errorCount := 0

	for _, community := range communities {
		if _, err := w.refresher.RefreshLeaderboard(ctx, community.ID, time.Now()); err != nil {
			w.logger.Error("failed to refresh leaderboard",
				"community_id", community.ID,
				"error", err,
			)
			errorCount++
		} else {
			refreshedCount++
		}
	}

	duration := time.Since(startTime)
	w.logger.Info("refresh cycle completed",
		"duration", duration,
		"refreshed", refreshedCount,
		"errors", errorCount,
	)
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle (useful for manual triggers)
func (w *RefreshWorker) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
