package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mintup-social/internal/config"
	"github.com/mintup-social/internal/connection"
	"github.com/mintup-social/internal/domain"
	"github.com/mintup-social/internal/leaderboard"
	"github.com/mintup-social/internal/postgres"
	"github.com/mintup-social/internal/redis"
	"github.com/mintup-social/internal/websocket"
)

// SocialService provides business logic for community leaderboards and
// attendee connections
type SocialService struct {
	store    *postgres.Repository
	cache    *redis.Cache
	protocol *connection.Protocol
	config   *config.LeaderboardConfig
	logger   *slog.Logger
	hub      *websocket.Hub
}

// NewSocialService creates a new social service
func NewSocialService(
	store *postgres.Repository,
	cache *redis.Cache,
	protocol *connection.Protocol,
	cfg *config.LeaderboardConfig,
	logger *slog.Logger,
) *SocialService {
	return &SocialService{
		store:    store,
		cache:    cache,
		protocol: protocol,
		config:   cfg,
		logger:   logger,
	}
}

// SetHub sets the WebSocket hub used for broadcasting updates
func (s *SocialService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}

// clampLimit normalizes a caller-supplied truncation limit
func (s *SocialService) clampLimit(n, fallback int) int {
	if n == 0 {
		return fallback
	}
	if n > s.config.MaxLimit {
		return s.config.MaxLimit
	}
	return n
}

// CommunityLeaderboard returns the community's rankings, serving the cached
// snapshot when one exists for the default limits. Non-default limits bypass
// the cache and build directly.
func (s *SocialService) CommunityLeaderboard(ctx context.Context, communityID string, now time.Time, topLimit, streakLimit int) (*domain.LeaderboardResult, error) {
	topLimit = s.clampLimit(topLimit, s.config.TopLimit)
	streakLimit = s.clampLimit(streakLimit, s.config.StreakLimit)

	cacheable := topLimit == s.config.TopLimit && streakLimit == s.config.StreakLimit
	if cacheable {
		cached, err := s.cache.GetLeaderboard(ctx, communityID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, redis.ErrNotCached) {
			s.logger.Warn("failed to read leaderboard cache", "community_id", communityID, "error", err)
		}
	}

	in, err := s.store.LeaderboardInput(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard input: %w", err)
	}

	result := leaderboard.Build(in, now, topLimit, streakLimit)

	if cacheable {
		if err := s.cache.SetLeaderboard(ctx, communityID, &result, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache leaderboard", "community_id", communityID, "error", err)
		}
	}
	return &result, nil
}

// RefreshLeaderboard force-rebuilds a community's snapshot, caches it, and
// broadcasts it to subscribers
func (s *SocialService) RefreshLeaderboard(ctx context.Context, communityID string, now time.Time) (*domain.LeaderboardResult, error) {
	in, err := s.store.LeaderboardInput(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard input: %w", err)
	}

	result := leaderboard.Build(in, now, s.config.TopLimit, s.config.StreakLimit)

	if err := s.cache.SetLeaderboard(ctx, communityID, &result, s.config.CacheTTL); err != nil {
		s.logger.Warn("failed to cache leaderboard", "community_id", communityID, "error", err)
	}

	if s.hub != nil {
		s.hub.BroadcastLeaderboardUpdate(communityID, &result)
	}
	return &result, nil
}

// RecordCheckIn records a verified check-in and invalidates the community's
// cached leaderboard
func (s *SocialService) RecordCheckIn(ctx context.Context, ci domain.CheckIn) error {
	if err := s.store.RecordCheckIn(ctx, ci); err != nil {
		return fmt.Errorf("recording check-in: %w", err)
	}

	communityID, err := s.store.CommunityForEvent(ctx, ci.EventID)
	if err != nil {
		s.logger.Warn("failed to resolve event community", "event_id", ci.EventID, "error", err)
		return nil
	}
	if err := s.cache.InvalidateLeaderboard(ctx, communityID); err != nil {
		s.logger.Warn("failed to invalidate leaderboard cache", "community_id", communityID, "error", err)
	}
	return nil
}

// RecordCheckInBatch applies multiple check-ins and invalidates every affected
// community's cached leaderboard
func (s *SocialService) RecordCheckInBatch(ctx context.Context, checkIns []domain.CheckIn) error {
	if len(checkIns) == 0 {
		return nil
	}

	if err := s.store.BatchRecordCheckIns(ctx, checkIns); err != nil {
		return fmt.Errorf("recording check-in batch: %w", err)
	}

	events := make(map[string]bool)
	for _, ci := range checkIns {
		events[ci.EventID] = true
	}
	communities := make(map[string]bool)
	for eventID := range events {
		communityID, err := s.store.CommunityForEvent(ctx, eventID)
		if err != nil {
			s.logger.Warn("failed to resolve event community", "event_id", eventID, "error", err)
			continue
		}
		communities[communityID] = true
	}
	for communityID := range communities {
		if err := s.cache.InvalidateLeaderboard(ctx, communityID); err != nil {
			s.logger.Warn("failed to invalidate leaderboard cache", "community_id", communityID, "error", err)
		}
	}
	return nil
}

// InitiateConnection starts a connection handshake on behalf of callerID
func (s *SocialService) InitiateConnection(ctx context.Context, callerID, eventID, acceptorID string, now time.Time) (*domain.ConnectionInvite, error) {
	return s.protocol.Initiate(ctx, callerID, eventID, acceptorID, now)
}

// ConfirmConnection redeems a connection token as callerID and notifies the
// event's community on success
func (s *SocialService) ConfirmConnection(ctx context.Context, callerID, token string, now time.Time) (*domain.Connection, error) {
	conn, err := s.protocol.Confirm(ctx, callerID, token, now)
	if err != nil {
		return nil, err
	}

	if s.hub != nil {
		communityID, err := s.store.CommunityForEvent(ctx, conn.EventID)
		if err != nil {
			s.logger.Warn("failed to resolve event community", "event_id", conn.EventID, "error", err)
		} else {
			s.hub.BroadcastConnectionUpdate(communityID, conn.EventID, conn.ID)
		}
	}
	return conn, nil
}

// ConnectionStatus returns the coarse pair status between two users at an event
func (s *SocialService) ConnectionStatus(ctx context.Context, eventID, userA, userB string, now time.Time) (domain.PairStatus, error) {
	return s.protocol.CheckStatus(ctx, eventID, userA, userB, now)
}

// ConfirmedConnections returns the caller's confirmed connections at an event
func (s *SocialService) ConfirmedConnections(ctx context.Context, callerID, eventID string) ([]domain.ConnectedProfile, error) {
	return s.protocol.ListConfirmedFor(ctx, callerID, eventID)
}

// ListCommunities returns all communities, for the refresh worker
func (s *SocialService) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	return s.store.ListCommunities(ctx)
}
