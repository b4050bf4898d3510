package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/config"
	"github.com/asean-events/checkin-station/internal/models"
)

// unreachable returns a cache whose server never answers.
func unreachable(t *testing.T) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return newRedisCache(client, 0, zap.NewNop())
}

func TestGetEvents_FailureIsMiss(t *testing.T) {
	c := unreachable(t)

	events, found, err := c.GetEvents(context.Background())
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, events)
}

func TestSetEvents_ReportsFailure(t *testing.T) {
	c := unreachable(t)

	err := c.SetEvents(context.Background(), []models.Event{{ID: 1, Title: "Opening"}})
	assert.Error(t, err)
}

func TestNewRedisCache_Errors(t *testing.T) {
	_, err := NewRedisCache(&config.Config{RedisURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRedisCache(&config.Config{RedisURL: "redis://127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestDefaultTTL(t *testing.T) {
	c := newRedisCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 0, zap.NewNop())
	defer c.client.Close()
	require.Equal(t, defaultTTL, c.ttl)

	c = newRedisCache(c.client, 30*time.Second, zap.NewNop())
	assert.Equal(t, 30*time.Second, c.ttl)
}
