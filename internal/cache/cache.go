package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// entry keeps the per-marketplace records next to the result, since the
// result's own JSON form flattens them into the response envelope.
type entry struct {
	Result  *models.AnalysisResult                       `json:"result"`
	Records map[models.Marketplace]*models.ProductRecord `json:"records,omitempty"`
}

// AnalysisCache stores finished analyses in Redis under versioned keys.
// Redis failures are logged and treated as misses.
type AnalysisCache struct {
	client  Client
	ttl     time.Duration
	version string
	logger  *slog.Logger
}

func NewAnalysisCache(client Client, cfg config.RedisConfig, logger *slog.Logger) *AnalysisCache {
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.DataVersion
	if version == "" {
		version = "v1"
	}
	return &AnalysisCache{
		client:  client,
		ttl:     cfg.CacheTTL,
		version: version,
		logger:  logger.With("component", "analysis_cache"),
	}
}

func (c *AnalysisCache) Get(ctx context.Context, rawURL string) (*models.AnalysisResult, bool) {
	key := AnalysisKey(c.version, rawURL)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("failed to read cached analysis", "key", key, "error", err)
		}
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Result == nil {
		c.logger.Warn("dropping unreadable cache entry", "key", key, "error", err)
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.logger.Warn("failed to delete cache entry", "key", key, "error", err)
		}
		return nil, false
	}

	e.Result.Records = e.Records
	return e.Result, true
}

// Set stores successful results only.
func (c *AnalysisCache) Set(ctx context.Context, rawURL string, result *models.AnalysisResult) {
	if result == nil || !result.Success {
		return
	}
	if err := c.store(ctx, AnalysisKey(c.version, rawURL), result); err != nil {
		c.logger.Warn("failed to cache analysis", "url", rawURL, "error", err)
	}
}

func (c *AnalysisCache) store(ctx context.Context, key string, result *models.AnalysisResult) error {
	data, err := json.Marshal(entry{Result: result, Records: result.Records})
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write analysis: %w", err)
	}
	return nil
}

// Invalidate removes the cached analysis of rawURL.
func (c *AnalysisCache) Invalidate(ctx context.Context, rawURL string) error {
	if err := c.client.Del(ctx, AnalysisKey(c.version, rawURL)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate analysis: %w", err)
	}
	return nil
}
