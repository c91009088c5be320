// Package cache provides a read cache for runtime template lookups. The
// authoring path always reads through to the store; only the hot runtime
// reads (resolving a template for every advance) go through here.
package cache

import (
	"context"

	"github.com/clinicdesk/pathway/pkg/models"
)

// TemplateCache caches fully loaded templates by scope and id. Misses and
// backend failures are equivalent; callers always fall back to the store.
type TemplateCache interface {
	Get(ctx context.Context, scope, templateID string) (*models.Template, bool)
	Set(ctx context.Context, template *models.Template)
	Invalidate(ctx context.Context, scope, templateID string)
	Close() error
}
