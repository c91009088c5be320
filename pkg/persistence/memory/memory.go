// Package memory provides an in-memory Persistence implementation used by
// unit tests and local development. It honours the same scoping, cascade
// and compare-and-swap semantics as the PostgreSQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence keeps all rows in process, guarded by one lock. Deep copies
// cross the API boundary in both directions so callers never share memory
// with the store.
type Persistence struct {
	mu        sync.RWMutex
	templates map[string]*models.Template
	instances map[string]*models.Instance

	templateRepo *TemplateRepository
	graphRepo    *GraphRepository
	instanceRepo *InstanceRepository
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	p := &Persistence{
		templates: make(map[string]*models.Template),
		instances: make(map[string]*models.Instance),
	}
	p.templateRepo = &TemplateRepository{store: p}
	p.graphRepo = &GraphRepository{store: p}
	p.instanceRepo = &InstanceRepository{store: p}

	return p
}

func (p *Persistence) TemplateRepository() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) GraphRepository() persistence.GraphRepository {
	return p.graphRepo
}

func (p *Persistence) InstanceRepository() persistence.InstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// findTemplate returns the live template for (id, scope), or nil. Caller
// must hold the lock.
func (p *Persistence) findTemplate(id string, scope models.Scope) *models.Template {
	template, ok := p.templates[id]
	if !ok || template.DeletedAt != nil || template.Scope != scope {
		return nil
	}

	return template
}

// editableTemplate locates a scoped template and checks the caller's
// version stamp. Caller must hold the write lock.
func (p *Persistence) editableTemplate(id string, scope models.Scope, expectedVersion int64) (*models.Template, error) {
	template := p.findTemplate(id, scope)
	if template == nil {
		return nil, persistence.ErrTemplateNotFound
	}

	if template.Version != expectedVersion {
		return nil, persistence.ErrVersionConflict
	}

	return template, nil
}

// touch bumps the version stamp after a successful mutation. Caller must
// hold the write lock.
func (p *Persistence) touch(template *models.Template) {
	template.Version++
	template.UpdatedAt = time.Now().UTC()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}

	return id.String()
}

func cloneTemplate(t *models.Template) *models.Template {
	if t == nil {
		return nil
	}

	out := *t

	out.Nodes = make([]*models.Node, len(t.Nodes))
	for i, node := range t.Nodes {
		copied := *node

		if node.Style != nil {
			style := *node.Style
			copied.Style = &style
		}

		out.Nodes[i] = &copied
	}

	out.Options = make([]*models.AnswerOption, len(t.Options))
	for i, option := range t.Options {
		copied := *option

		if option.TargetNodeID != nil {
			target := *option.TargetNodeID
			copied.TargetNodeID = &target
		}

		out.Options[i] = &copied
	}

	out.Links = make([]*models.NodeLink, len(t.Links))
	for i, link := range t.Links {
		copied := *link
		out.Links[i] = &copied
	}

	out.Styles = make([]*models.NodeStyle, len(t.Styles))
	for i, style := range t.Styles {
		copied := *style
		out.Styles[i] = &copied
	}

	if t.ApprovedAt != nil {
		at := *t.ApprovedAt
		out.ApprovedAt = &at
	}

	if t.DeletedAt != nil {
		at := *t.DeletedAt
		out.DeletedAt = &at
	}

	return &out
}

func cloneInstance(i *models.Instance) *models.Instance {
	if i == nil {
		return nil
	}

	out := *i

	out.History = make([]models.HistoryEntry, len(i.History))
	copy(out.History, i.History)

	if i.CompletedAt != nil {
		at := *i.CompletedAt
		out.CompletedAt = &at
	}

	return &out
}

func sortTemplates(templates []*models.Template) {
	sort.SliceStable(templates, func(i, j int) bool {
		if templates[i].CreatedAt.Equal(templates[j].CreatedAt) {
			return templates[i].ID < templates[j].ID
		}

		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
}
