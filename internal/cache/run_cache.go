// Package cache keeps rendered run details in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

const keyPrefix = "strategy-analyser:run:"

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RunCache stores run details as JSON with a TTL.
// A nil *RunCache is valid and caches nothing.
type RunCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRunCache creates a RunCache on client.
func NewRunCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunCache{client: client, ttl: ttl, logger: logger}
}

func runKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (c *RunCache) enabled() bool {
	return c != nil && c.client != nil
}

// Get returns the cached detail of a run. Misses and Redis errors both report false.
func (c *RunCache) Get(ctx context.Context, id uuid.UUID) (*domain.RunDetail, bool) {
	if !c.enabled() {
		return nil, false
	}

	data, err := c.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Run cache read failed", zap.String("run_id", id.String()), zap.Error(err))
		}
		return nil, false
	}

	var detail domain.RunDetail
	if err := json.Unmarshal(data, &detail); err != nil || detail.Run == nil {
		c.logger.Warn("Discarding corrupt run cache entry", zap.String("run_id", id.String()))
		_ = c.client.Del(ctx, runKey(id)).Err()
		return nil, false
	}
	return &detail, true
}

// Set caches detail under its run ID.
func (c *RunCache) Set(ctx context.Context, detail *domain.RunDetail) {
	if !c.enabled() || detail == nil || detail.Run == nil {
		return
	}

	data, err := json.Marshal(detail)
	if err != nil {
		c.logger.Warn("Failed to marshal run detail", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, runKey(detail.Run.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Run cache write failed", zap.String("run_id", detail.Run.ID.String()), zap.Error(err))
	}
}

// Invalidate removes the cached details of the given runs.
func (c *RunCache) Invalidate(ctx context.Context, ids ...uuid.UUID) {
	if !c.enabled() || len(ids) == 0 {
		return
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, runKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Run cache invalidation failed", zap.Int("keys", len(keys)), zap.Error(err))
	}
}

// Close closes the underlying client.
func (c *RunCache) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.client.Close()
}
