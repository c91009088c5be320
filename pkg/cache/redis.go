package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pathway:template:"

// DefaultTTL bounds staleness when an invalidation event is lost; runtime
// reads tolerate a template at most this old.
const DefaultTTL = 5 * time.Minute

// RedisCache is a TemplateCache backed by Redis. Entries are JSON documents
// under `pathway:template:<scope>:<id>`.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, logger *slog.Logger, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	logger.InfoContext(ctx, "connected to Redis template cache", "addr", opts.Addr, "ttl", ttl)

	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "cache"),
	}, nil
}

func cacheKey(scope, templateID string) string {
	return keyPrefix + scope + ":" + templateID
}

func (c *RedisCache) Get(ctx context.Context, scope, templateID string) (*models.Template, bool) {
	payload, err := c.client.Get(ctx, cacheKey(scope, templateID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "cache read failed", "template_id", templateID, "error", err)
		}

		return nil, false
	}

	var template models.Template

	err = json.Unmarshal(payload, &template)
	if err != nil {
		c.logger.WarnContext(ctx, "dropping undecodable cache entry", "template_id", templateID, "error", err)
		c.Invalidate(ctx, scope, templateID)

		return nil, false
	}

	return &template, true
}

func (c *RedisCache) Set(ctx context.Context, template *models.Template) {
	payload, err := json.Marshal(template)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to encode template for cache",
			"template_id", template.ID, "error", err)

		return
	}

	err = c.client.Set(ctx, cacheKey(template.Scope.String(), template.ID), payload, c.ttl).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "template_id", template.ID, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, scope, templateID string) {
	err := c.client.Del(ctx, cacheKey(scope, templateID)).Err()
	if err != nil {
		c.logger.WarnContext(ctx, "cache invalidation failed", "template_id", templateID, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
