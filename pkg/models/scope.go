// Package models defines the core domain models for workflow template graphs
// and their instance runs.
package models

import (
	"encoding/json"
	"fmt"
)

const globalScopeLabel = "global"

// Scope identifies who owns a template: a single tenant, or the shared
// global default set every tenant can read.
type Scope struct {
	tenantID string
}

// Global is the shared default scope.
var Global = Scope{}

// ForTenant returns the scope owned by the given tenant.
func ForTenant(tenantID string) Scope {
	return Scope{tenantID: tenantID}
}

// ParseScope converts the wire representation ("global" or a tenant id)
// back into a Scope.
func ParseScope(value string) Scope {
	if value == "" || value == globalScopeLabel {
		return Global
	}

	return Scope{tenantID: value}
}

func (s Scope) IsGlobal() bool {
	return s.tenantID == ""
}

// TenantID returns the owning tenant id, or "" for the global scope.
func (s Scope) TenantID() string {
	return s.tenantID
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return globalScopeLabel
	}

	return s.tenantID
}

func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Scope) UnmarshalJSON(data []byte) error {
	var value string

	err := json.Unmarshal(data, &value)
	if err != nil {
		return fmt.Errorf("failed to unmarshal scope: %w", err)
	}

	*s = ParseScope(value)

	return nil
}
