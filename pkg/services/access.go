package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
)

// requireManager resolves the caller and checks authoring rights for the
// scope. Unknown users and insufficient grants both fail closed.
func requireManager(ctx context.Context, resolver identity.Resolver, userID string, scope models.Scope) (identity.Grant, error) {
	grant, err := resolver.Resolve(ctx, userID)
	if err != nil {
		return identity.Grant{}, fmt.Errorf("%w: %s", ErrForbidden, userID)
	}

	if !grant.CanManage(scope) {
		return identity.Grant{}, fmt.Errorf("%w: %s may not manage scope %s", ErrForbidden, userID, scope)
	}

	return grant, nil
}

// requireRunner resolves the caller and checks instance rights for the tenant.
func requireRunner(ctx context.Context, resolver identity.Resolver, userID, tenantID string) (identity.Grant, error) {
	grant, err := resolver.Resolve(ctx, userID)
	if err != nil {
		return identity.Grant{}, fmt.Errorf("%w: %s", ErrForbidden, userID)
	}

	if !grant.CanRun(tenantID) {
		return identity.Grant{}, fmt.Errorf("%w: %s may not run instances for tenant %s", ErrForbidden, userID, tenantID)
	}

	return grant, nil
}

// publish emits a lifecycle event without awaiting delivery guarantees; bus
// failures are logged and never fail the originating operation.
func publish(ctx context.Context, bus eventbus.EventPublisher, logger *slog.Logger, key string, event eventbus.Event) {
	if bus == nil {
		return
	}

	err := bus.Publish(ctx, key, event)
	if err != nil {
		logger.WarnContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "key", key, "error", err)
	}
}
