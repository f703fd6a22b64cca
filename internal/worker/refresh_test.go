package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mintup-social/internal/config"
	"github.com/mintup-social/internal/domain"
)

// fakeRefresher records which communities were refreshed
type fakeRefresher struct {
	mu          sync.Mutex
	communities []domain.Community
	refreshed   []string
	failFor     string
}

func (f *fakeRefresher) ListCommunities(_ context.Context) ([]domain.Community, error) {
	return f.communities, nil
}

func (f *fakeRefresher) RefreshLeaderboard(_ context.Context, communityID string, _ time.Time) (*domain.LeaderboardResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if communityID == f.failFor {
		return nil, errors.New("boom")
	}
	f.refreshed = append(f.refreshed, communityID)
	return &domain.LeaderboardResult{}, nil
}

func newTestWorker(refresher Refresher, interval time.Duration) *RefreshWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.RefreshConfig{Interval: interval, Enabled: true}
	return NewRefreshWorker(refresher, cfg, logger)
}

func TestRunOnceRefreshesAllCommunities(t *testing.T) {
	refresher := &fakeRefresher{
		communities: []domain.Community{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}},
	}
	w := newTestWorker(refresher, time.Hour)

	w.RunOnce(context.Background())

	if len(refresher.refreshed) != 3 {
		t.Fatalf("expected 3 refreshes, got %d", len(refresher.refreshed))
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	refresher := &fakeRefresher{
		communities: []domain.Community{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}},
		failFor:     "c2",
	}
	w := newTestWorker(refresher, time.Hour)

	w.RunOnce(context.Background())

	if len(refresher.refreshed) != 2 {
		t.Fatalf("expected 2 refreshes despite one failure, got %d", len(refresher.refreshed))
	}
}

func TestStartStop(t *testing.T) {
	refresher := &fakeRefresher{communities: []domain.Community{{ID: "c1"}}}
	w := newTestWorker(refresher, 10*time.Millisecond)

	if w.IsRunning() {
		t.Fatal("worker should not be running before Start")
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !w.IsRunning() {
		t.Fatal("worker should report running after Start")
	}

	// Starting again is a no-op.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	// Let at least one tick fire.
	deadline := time.Now().Add(2 * time.Second)
	for {
		refresher.mu.Lock()
		n := len(refresher.refreshed)
		refresher.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no refresh cycle within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if w.IsRunning() {
		t.Fatal("worker should not report running after Stop")
	}
	// Stopping again is a no-op.
	if err := w.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}
