package memory

import (
	"context"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// TemplateRepository is the in-memory template store.
type TemplateRepository struct {
	store *Persistence
}

func (r *TemplateRepository) List(_ context.Context, scope models.Scope, activeOnly bool) ([]*models.Template, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	templates := make([]*models.Template, 0)

	for _, template := range r.store.templates {
		if template.DeletedAt != nil || template.Scope != scope {
			continue
		}

		if activeOnly && !template.Active {
			continue
		}

		templates = append(templates, cloneTemplate(template))
	}

	sortTemplates(templates)

	return templates, nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string, scope models.Scope) (*models.Template, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	template := r.store.findTemplate(id, scope)
	if template == nil {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	return cloneTemplate(template), nil
}

func (r *TemplateRepository) GetForRuntime(_ context.Context, id, tenantID string) (*models.Template, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	template := r.store.findTemplate(id, models.ForTenant(tenantID))
	if template == nil {
		template = r.store.findTemplate(id, models.Global)
	}

	if template == nil {
		return nil, persistence.NewTemplateError("GetForRuntime", id, persistence.ErrTemplateNotFound)
	}

	return cloneTemplate(template), nil
}

func (r *TemplateRepository) Create(_ context.Context, template *models.Template) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.templates {
		if existing.DeletedAt == nil && existing.Scope == template.Scope && existing.Name == template.Name {
			return persistence.NewTemplateError("Create", template.ID, persistence.ErrDuplicateTemplateName)
		}
	}

	now := time.Now().UTC()

	if template.ID == "" {
		template.ID = newID()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.Version == 0 {
		template.Version = 1
	}

	r.store.templates[template.ID] = cloneTemplate(template)

	return nil
}

func (r *TemplateRepository) UpdateMeta(_ context.Context, template *models.Template, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.store.editableTemplate(template.ID, template.Scope, expectedVersion)
	if err != nil {
		return persistence.NewTemplateError("UpdateMeta", template.ID, err)
	}

	for _, existing := range r.store.templates {
		if existing.ID != template.ID && existing.DeletedAt == nil &&
			existing.Scope == template.Scope && existing.Name == template.Name {
			return persistence.NewTemplateError("UpdateMeta", template.ID, persistence.ErrDuplicateTemplateName)
		}
	}

	stored.Name = template.Name
	stored.Description = template.Description
	stored.Icon = template.Icon
	stored.Color = template.Color
	stored.Kind = template.Kind
	stored.Active = template.Active
	stored.UpdatedBy = template.UpdatedBy
	r.store.touch(stored)

	template.Version = stored.Version
	template.UpdatedAt = stored.UpdatedAt

	return nil
}

func (r *TemplateRepository) UpdateStatus(_ context.Context, template *models.Template, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.store.editableTemplate(template.ID, template.Scope, expectedVersion)
	if err != nil {
		return persistence.NewTemplateError("UpdateStatus", template.ID, err)
	}

	stored.Status = template.Status
	stored.ReviewNote = template.ReviewNote
	stored.ApprovedBy = template.ApprovedBy
	stored.UpdatedBy = template.UpdatedBy

	if template.ApprovedAt != nil {
		at := *template.ApprovedAt
		stored.ApprovedAt = &at
	} else {
		stored.ApprovedAt = nil
	}

	r.store.touch(stored)

	template.Version = stored.Version
	template.UpdatedAt = stored.UpdatedAt

	return nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string, scope models.Scope, expectedVersion int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.store.editableTemplate(id, scope, expectedVersion)
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	now := time.Now().UTC()
	stored.DeletedAt = &now
	r.store.touch(stored)

	return nil
}
