// Package cache provides Redis caching of the upstream event list.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/config"
	"github.com/asean-events/checkin-station/internal/models"
)

const (
	eventsKey  = "checkin:events"
	defaultTTL = 2 * time.Minute
)

// Cache defines the interface for event list caching.
type Cache interface {
	// GetEvents returns the cached event list and whether it was present.
	// Read failures are reported as a miss.
	GetEvents(ctx context.Context) ([]models.Event, bool, error)

	// SetEvents stores the event list.
	SetEvents(ctx context.Context, events []models.Event) error

	// Invalidate drops the cached event list.
	Invalidate(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

// RedisCache implements Cache using Redis.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRedisCache connects to the configured Redis instance.
func NewRedisCache(cfg *config.Config, logger *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis cache")
	return newRedisCache(client, cfg.EventsCacheTTL, logger), nil
}

func newRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// GetEvents retrieves the cached event list.
func (c *RedisCache) GetEvents(ctx context.Context) ([]models.Event, bool, error) {
	data, err := c.client.Get(ctx, eventsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("Failed to get events from cache", zap.Error(err))
		return nil, false, nil
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		c.logger.Warn("Failed to unmarshal cached events", zap.Error(err))
		return nil, false, nil
	}

	c.logger.Debug("Cache hit for events", zap.Int("count", len(events)))
	return events, true, nil
}

// SetEvents stores the event list for the configured TTL.
func (c *RedisCache) SetEvents(ctx context.Context, events []models.Event) error {
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	if err := c.client.Set(ctx, eventsKey, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Failed to cache events", zap.Error(err))
		return fmt.Errorf("failed to cache events: %w", err)
	}

	c.logger.Debug("Cached events", zap.Int("count", len(events)), zap.Duration("ttl", c.ttl))
	return nil
}

// Invalidate drops the cached event list.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, eventsKey).Err(); err != nil {
		c.logger.Warn("Failed to invalidate events cache", zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	c.logger.Info("Closing Redis connection")
	return c.client.Close()
}
