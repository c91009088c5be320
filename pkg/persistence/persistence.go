// Package persistence provides the data storage abstraction for workflow
// templates, their graphs, and instance runs.
package persistence

import (
	"context"

	"github.com/clinicdesk/pathway/pkg/models"
)

// NodePosition is one entry of a bulk reposition batch.
type NodePosition struct {
	NodeID string `json:"node_id" validate:"required"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// ListInstancesOptions filters and pages instance listings.
type ListInstancesOptions struct {
	Status *models.InstanceStatus
	Limit  int
	Offset int
}

// TemplateRepository stores templates and reads them back with their full
// graph. Every read and write is scoped so one tenant can never touch
// another tenant's rows, even with a guessed id.
type TemplateRepository interface {
	List(ctx context.Context, scope models.Scope, activeOnly bool) ([]*models.Template, error)
	GetByID(ctx context.Context, id string, scope models.Scope) (*models.Template, error)
	// GetForRuntime resolves a template the way the runtime sees it: the
	// tenant's own scope first, falling back to the shared global set.
	GetForRuntime(ctx context.Context, id, tenantID string) (*models.Template, error)
	// Create persists the template and its whole graph in one transaction.
	Create(ctx context.Context, template *models.Template) error
	// UpdateMeta writes the template record fields. The write succeeds only
	// when the stored version equals expectedVersion; the version is bumped
	// by one on success. ErrVersionConflict otherwise.
	UpdateMeta(ctx context.Context, template *models.Template, expectedVersion int64) error
	// UpdateStatus writes lifecycle fields (status, review note, approver
	// stamps) under the same compare-and-swap rule as UpdateMeta.
	UpdateStatus(ctx context.Context, template *models.Template, expectedVersion int64) error
	Delete(ctx context.Context, id string, scope models.Scope, expectedVersion int64) error
}

// GraphRepository applies structural edits to one template's graph. Every
// mutation runs in a single transaction that also compare-and-swaps the
// owning template's version stamp, so concurrent editors serialize cleanly.
type GraphRepository interface {
	CreateNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error
	UpdateNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error
	// DeleteNode removes the node, its outgoing options and links, and
	// nulls the target of every other option in the template that pointed
	// at it, all in one transaction.
	DeleteNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeID string) error

	CreateOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error
	UpdateOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error
	DeleteOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, optionID string) error

	CreateLink(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, link *models.NodeLink) error
	DeleteLink(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, linkID string) error

	// RepositionNodes applies the whole batch or none of it. A node id not
	// belonging to the template fails the batch with ErrForeignNode.
	RepositionNodes(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, positions []NodePosition) error

	UpsertStyle(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, style *models.NodeStyle) error
	DeleteStyle(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeType models.NodeType) error
	// CopyStyles copies per-type defaults from another template. With
	// overwrite, existing destination rows are replaced; without, only
	// types absent in the destination are filled in.
	CopyStyles(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, sourceTemplateID string, overwrite bool) error
}

// InstanceRepository stores instance runs and their append-only history.
type InstanceRepository interface {
	Create(ctx context.Context, instance *models.Instance) error
	GetByID(ctx context.Context, id, tenantID string) (*models.Instance, error)
	List(ctx context.Context, tenantID string, opts ListInstancesOptions) ([]*models.Instance, error)
	// ApplyStep writes the instance's new position (current node, template,
	// status) and appends exactly one history row in one transaction,
	// compare-and-swapping the instance version. Exactly one of two racing
	// advances wins; the loser gets ErrVersionConflict.
	ApplyStep(ctx context.Context, instance *models.Instance, expectedVersion int64, step *models.HistoryEntry) error
	// UpdateStatus flips the run status without recording history, used
	// for abandonment. Same compare-and-swap rule as ApplyStep.
	UpdateStatus(ctx context.Context, instance *models.Instance, expectedVersion int64) error
}

// Persistence bundles the repositories behind one connection lifecycle.
type Persistence interface {
	TemplateRepository() TemplateRepository
	GraphRepository() GraphRepository
	InstanceRepository() InstanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
