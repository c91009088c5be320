package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicdesk/pathway/pkg/cache"
)

// NewTemplateCache creates the redis template cache, or no cache at all when
// no URL is configured. The engine is correct without one; it just reads the
// store on every runtime lookup.
func NewTemplateCache(ctx context.Context, logger *slog.Logger, redisURL string) (cache.TemplateCache, error) {
	if redisURL == "" {
		return nil, nil
	}

	c, err := cache.NewRedisCache(ctx, logger, redisURL, cache.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create template cache: %w", err)
	}

	return c, nil
}
