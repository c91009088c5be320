package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/events"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// Template implements authoring CRUD on workflow templates.
type Template struct {
	persistence persistence.Persistence
	identity    identity.Resolver
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewTemplate creates a new template service.
func NewTemplate(p persistence.Persistence, resolver identity.Resolver, bus eventbus.EventPublisher, logger *slog.Logger) *Template {
	return &Template{
		persistence: p,
		identity:    resolver,
		bus:         bus,
		logger:      logger.With("service", "template"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateTemplateRequest carries the authored metadata for a new template.
type CreateTemplateRequest struct {
	Name        string `validate:"required,min=3"`
	Description string
	Icon        string
	Color       string
	Kind        string
}

// Create creates an empty draft template in the scope.
func (s *Template) Create(ctx context.Context, userID string, scope models.Scope, req CreateTemplateRequest) (*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	template := &models.Template{
		Scope:       scope,
		Name:        name,
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
		Kind:        req.Kind,
		Active:      true,
		Status:      models.TemplateStatusDraft,
		UpdatedBy:   userID,
	}

	err = s.persistence.TemplateRepository().Create(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.InfoContext(ctx, "template created",
		"template_id", template.ID, "scope", scope.String(), "name", name)

	event := events.TemplateCreated{
		BaseEvent: events.NewBaseEvent(events.TemplateCreatedEvent, template.ID),
		Name:      name,
		CreatedBy: userID,
	}
	event.Scope = scope.String()
	publish(ctx, s.bus, s.logger, template.ID, event)

	return template, nil
}

// List returns the scope's templates without their graphs.
func (s *Template) List(ctx context.Context, userID string, scope models.Scope, activeOnly bool) ([]*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	templates, err := s.persistence.TemplateRepository().List(ctx, scope, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// Get returns a template with its full graph.
func (s *Template) Get(ctx context.Context, userID string, scope models.Scope, templateID string) (*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return template, nil
}

// UpdateTemplateRequest carries a partial metadata update; nil fields are
// left unchanged.
type UpdateTemplateRequest struct {
	Name        *string `validate:"omitempty,min=3"`
	Description *string
	Icon        *string
	Color       *string
	Kind        *string
	Active      *bool
}

// UpdateMeta updates template metadata. Metadata stays editable in every
// status; only the graph freezes during review.
func (s *Template) UpdateMeta(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, req UpdateTemplateRequest) (*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}

		template.Name = name
	}

	if req.Description != nil {
		template.Description = *req.Description
	}

	if req.Icon != nil {
		template.Icon = *req.Icon
	}

	if req.Color != nil {
		template.Color = *req.Color
	}

	if req.Kind != nil {
		template.Kind = *req.Kind
	}

	if req.Active != nil {
		template.Active = *req.Active
	}

	template.UpdatedBy = userID

	err = s.persistence.TemplateRepository().UpdateMeta(ctx, template, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	s.publishChanged(ctx, template, userID, "meta.updated")

	return template, nil
}

// Delete soft-deletes a template. Running instances keep their loaded graphs;
// new instances can no longer start from it.
func (s *Template) Delete(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64) error {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return err
	}

	err = s.persistence.TemplateRepository().Delete(ctx, templateID, scope, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	s.logger.InfoContext(ctx, "template deleted", "template_id", templateID, "scope", scope.String())

	event := events.TemplateDeleted{
		BaseEvent: events.NewBaseEvent(events.TemplateDeletedEvent, templateID),
		DeletedBy: userID,
	}
	event.Scope = scope.String()
	publish(ctx, s.bus, s.logger, templateID, event)

	return nil
}

func (s *Template) publishChanged(ctx context.Context, template *models.Template, userID, change string) {
	event := events.TemplateChanged{
		BaseEvent: events.NewBaseEvent(events.TemplateChangedEvent, template.ID),
		Version:   template.Version,
		ChangedBy: userID,
		Change:    change,
	}
	event.Scope = template.Scope.String()
	publish(ctx, s.bus, s.logger, template.ID, event)
}
