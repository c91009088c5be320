package cache

import (
	"context"
	"log/slog"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/events"
)

// Invalidator drops cached templates when template lifecycle events arrive
// on the bus, so runtime reads converge shortly after an author's change.
type Invalidator struct {
	cache  TemplateCache
	logger *slog.Logger
}

// NewInvalidator registers the invalidation handlers on the bus. The caller
// still owns Subscribe.
func NewInvalidator(bus eventbus.EventBus, cache TemplateCache, logger *slog.Logger) (*Invalidator, error) {
	inv := &Invalidator{
		cache:  cache,
		logger: logger.With("module", "cache-invalidator"),
	}

	for _, eventType := range []events.EventType{
		events.TemplateChangedEvent,
		events.TemplateApprovedEvent,
		events.TemplateDeletedEvent,
	} {
		err := bus.Handle(eventType, inv.handle)
		if err != nil {
			return nil, err
		}
	}

	return inv, nil
}

func (i *Invalidator) handle(ctx context.Context, event interface{}) error {
	var (
		templateID string
		scope      string
	)

	switch e := event.(type) {
	case *events.TemplateChanged:
		templateID, scope = e.TemplateID, e.Scope
	case *events.TemplateApproved:
		templateID, scope = e.TemplateID, e.Scope
	case *events.TemplateDeleted:
		templateID, scope = e.TemplateID, e.Scope
	default:
		return nil
	}

	i.logger.DebugContext(ctx, "invalidating cached template",
		"template_id", templateID, "scope", scope)
	i.cache.Invalidate(ctx, scope, templateID)

	return nil
}
