// Package identity resolves the caller of an API request into a permission
// grant. The engine itself performs no authentication; the surrounding portal
// identifies the user and this package answers what that user may touch.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/clinicdesk/pathway/pkg/models"
)

// ErrUnknownUser is returned when the resolver has no grant for a user id.
// Callers treat it as a denial; there is no anonymous grant.
var ErrUnknownUser = errors.New("unknown user")

// Grant describes what a single user may manage.
type Grant struct {
	UserID       string   `json:"user_id"`
	TenantID     string   `json:"tenant_id,omitempty"` // Home tenant for instance operations
	Superuser    bool     `json:"superuser"`           // May manage global templates and every tenant
	AdminTenants []string `json:"admin_tenants,omitempty"`
}

// IsTenantAdmin reports whether the grant may author templates for the tenant.
func (g Grant) IsTenantAdmin(tenantID string) bool {
	if g.Superuser {
		return true
	}

	return slices.Contains(g.AdminTenants, tenantID)
}

// CanManage reports whether the grant may mutate templates in the scope.
// Global templates require a superuser; tenant templates require tenant
// admin rights. Everything else fails closed.
func (g Grant) CanManage(scope models.Scope) bool {
	if scope.IsGlobal() {
		return g.Superuser
	}

	return g.IsTenantAdmin(scope.TenantID())
}

// CanRun reports whether the grant may start and advance instances for the
// tenant. Any member of the tenant may run; admins of the tenant too.
func (g Grant) CanRun(tenantID string) bool {
	if g.Superuser {
		return true
	}

	return g.TenantID == tenantID || g.IsTenantAdmin(tenantID)
}

// Resolver looks up the grant for a user id.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (Grant, error)
}

// StaticResolver serves grants from an in-memory table. Used in tests and in
// deployments where the portal provisions a fixed staff roster at startup.
type StaticResolver struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewStaticResolver creates a resolver seeded with the given grants.
func NewStaticResolver(grants ...Grant) *StaticResolver {
	table := make(map[string]Grant, len(grants))
	for _, grant := range grants {
		table[grant.UserID] = grant
	}

	return &StaticResolver{grants: table}
}

// Put adds or replaces the grant for its user id.
func (r *StaticResolver) Put(grant Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.grants[grant.UserID] = grant
}

// Resolve returns the grant for the user id or ErrUnknownUser.
func (r *StaticResolver) Resolve(_ context.Context, userID string) (Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, ok := r.grants[userID]
	if !ok {
		return Grant{}, fmt.Errorf("resolve grant for %q: %w", userID, ErrUnknownUser)
	}

	return grant, nil
}

// LoadResolver builds a resolver from a JSON file holding an array of
// grants. An empty path yields an empty resolver, which denies everyone
// until grants are provisioned.
func LoadResolver(path string) (*StaticResolver, error) {
	if path == "" {
		return NewStaticResolver(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grants file: %w", err)
	}

	var grants []Grant
	if err := json.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("parse grants file %s: %w", path, err)
	}

	return NewStaticResolver(grants...), nil
}
