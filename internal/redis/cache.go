package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mintup-social/internal/config"
	"github.com/mintup-social/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrNotCached is returned when a community has no cached snapshot
var ErrNotCached = errors.New("leaderboard not cached")

// Cache provides Redis-backed caching for leaderboard snapshots and member
// profiles. The durable source of truth stays in PostgreSQL; everything here
// can be dropped and rebuilt.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new Redis cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

// leaderboardKey returns the Redis key for a community's leaderboard snapshot
func (c *Cache) leaderboardKey(communityID string) string {
	return fmt.Sprintf("community:%s:leaderboard", communityID)
}

// profileKey returns the Redis key for a member profile cache entry
func (c *Cache) profileKey(userID string) string {
	return fmt.Sprintf("member:%s:profile", userID)
}

// GetLeaderboard retrieves a cached leaderboard snapshot
func (c *Cache) GetLeaderboard(ctx context.Context, communityID string) (*domain.LeaderboardResult, error) {
	data, err := c.client.Get(ctx, c.leaderboardKey(communityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("getting leaderboard snapshot: %w", err)
	}

	var result domain.LeaderboardResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshaling leaderboard snapshot: %w", err)
	}
	return &result, nil
}

// SetLeaderboard stores a leaderboard snapshot with a TTL
func (c *Cache) SetLeaderboard(ctx context.Context, communityID string, result *domain.LeaderboardResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling leaderboard snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.leaderboardKey(communityID), data, ttl).Err(); err != nil {
		return fmt.Errorf("setting leaderboard snapshot: %w", err)
	}
	return nil
}

// InvalidateLeaderboard drops a community's cached snapshot so the next read
// rebuilds it
func (c *Cache) InvalidateLeaderboard(ctx context.Context, communityID string) error {
	if err := c.client.Del(ctx, c.leaderboardKey(communityID)).Err(); err != nil {
		return fmt.Errorf("invalidating leaderboard snapshot: %w", err)
	}
	return nil
}

// SetMemberProfile caches a member profile
func (c *Cache) SetMemberProfile(ctx context.Context, profile domain.MemberProfile) error {
	key := c.profileKey(profile.UserID)
	err := c.client.HSet(ctx, key,
		"user_id", profile.UserID,
		"name", profile.Name,
		"image_url", profile.ImageURL,
	).Err()
	if err != nil {
		return fmt.Errorf("setting member profile: %w", err)
	}
	return nil
}

// GetMemberProfile retrieves a cached member profile
func (c *Cache) GetMemberProfile(ctx context.Context, userID string) (*domain.MemberProfile, error) {
	result, err := c.client.HGetAll(ctx, c.profileKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting member profile: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrNotCached
	}
	return &domain.MemberProfile{
		UserID:   userID,
		Name:     result["name"],
		ImageURL: result["image_url"],
	}, nil
}
