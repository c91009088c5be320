package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/events"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
)

// Review lifecycle triggers.
const (
	triggerSubmit         = "submit"
	triggerApprove        = "approve"
	triggerRequestChanges = "request_changes"
	triggerReopen         = "reopen"
)

// Approval drives templates through the review lifecycle and clones them
// across scopes.
type Approval struct {
	persistence persistence.Persistence
	identity    identity.Resolver
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewApproval creates a new approval service.
func NewApproval(p persistence.Persistence, resolver identity.Resolver, bus eventbus.EventPublisher, logger *slog.Logger) *Approval {
	return &Approval{
		persistence: p,
		identity:    resolver,
		bus:         bus,
		logger:      logger.With("service", "approval"),
	}
}

// lifecycle builds the review state machine positioned at the template's
// current status. Firing an unconfigured trigger is the single source of
// ErrInvalidTransition.
func lifecycle(current models.TemplateStatus) *stateless.StateMachine {
	fsm := stateless.NewStateMachine(current)

	fsm.Configure(models.TemplateStatusDraft).
		Permit(triggerSubmit, models.TemplateStatusPendingReview)

	fsm.Configure(models.TemplateStatusChangesRequired).
		Permit(triggerSubmit, models.TemplateStatusPendingReview)

	fsm.Configure(models.TemplateStatusPendingReview).
		Permit(triggerApprove, models.TemplateStatusApproved).
		Permit(triggerRequestChanges, models.TemplateStatusChangesRequired)

	fsm.Configure(models.TemplateStatusApproved).
		Permit(triggerReopen, models.TemplateStatusDraft)

	return fsm
}

// transition fires the trigger and returns the resulting status, mapping the
// state machine's rejection to the service's invalid-state error.
func transition(ctx context.Context, current models.TemplateStatus, trigger string) (models.TemplateStatus, error) {
	fsm := lifecycle(current)

	err := fsm.FireCtx(ctx, trigger)
	if err != nil {
		return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, current)
	}

	return fsm.MustState().(models.TemplateStatus), nil
}

func (s *Approval) load(ctx context.Context, userID string, scope models.Scope, templateID string) (*models.Template, error) {
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

// SubmitForReview freezes an editable template for review. Empty graphs and
// graphs without a resolvable entry node are rejected before the reviewer
// ever sees them.
func (s *Approval) SubmitForReview(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64) (*models.Template, error) {
	template, err := s.load(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	if template.EntryNode() == nil {
		return nil, ErrEmptyGraph
	}

	next, err := transition(ctx, template.Status, triggerSubmit)
	if err != nil {
		return nil, err
	}

	template.Status = next
	template.ReviewNote = ""
	template.UpdatedBy = userID

	err = s.persistence.TemplateRepository().UpdateStatus(ctx, template, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to submit template: %w", err)
	}

	s.logger.InfoContext(ctx, "template submitted for review",
		"template_id", templateID, "scope", scope.String())
	s.publishChanged(ctx, template, userID, "status.pending_review")

	return template, nil
}

// Approve marks a pending template runnable and stamps the approver.
func (s *Approval) Approve(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64) (*models.Template, error) {
	template, err := s.load(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	next, err := transition(ctx, template.Status, triggerApprove)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	template.Status = next
	template.ReviewNote = ""
	template.ApprovedBy = userID
	template.ApprovedAt = &now
	template.UpdatedBy = userID

	err = s.persistence.TemplateRepository().UpdateStatus(ctx, template, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to approve template: %w", err)
	}

	s.logger.InfoContext(ctx, "template approved",
		"template_id", templateID, "approved_by", userID)

	event := events.TemplateApproved{
		BaseEvent:  events.NewBaseEvent(events.TemplateApprovedEvent, template.ID),
		ApprovedBy: userID,
	}
	event.Scope = template.Scope.String()
	publish(ctx, s.bus, s.logger, template.ID, event)

	return template, nil
}

// RequestChanges sends a pending template back to its author with a note.
func (s *Approval) RequestChanges(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, note string) (*models.Template, error) {
	template, err := s.load(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	next, err := transition(ctx, template.Status, triggerRequestChanges)
	if err != nil {
		return nil, err
	}

	template.Status = next
	template.ReviewNote = note
	template.UpdatedBy = userID

	err = s.persistence.TemplateRepository().UpdateStatus(ctx, template, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to request changes: %w", err)
	}

	s.publishChanged(ctx, template, userID, "status.changes_required")

	return template, nil
}

// ReopenForEditing turns an approved template back into a draft and clears
// the approver stamps. Running instances are unaffected.
func (s *Approval) ReopenForEditing(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64) (*models.Template, error) {
	template, err := s.load(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	next, err := transition(ctx, template.Status, triggerReopen)
	if err != nil {
		return nil, err
	}

	template.Status = next
	template.ApprovedBy = ""
	template.ApprovedAt = nil
	template.UpdatedBy = userID

	err = s.persistence.TemplateRepository().UpdateStatus(ctx, template, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen template: %w", err)
	}

	s.publishChanged(ctx, template, userID, "status.draft")

	return template, nil
}

// Clone deep-copies a template into a destination scope as a fresh draft.
// Every node, option and link gets a new id with references remapped; link
// targets keep pointing at the same target templates. The copy records its
// origin in SourceTemplateID and is never re-synced with it.
func (s *Approval) Clone(ctx context.Context, userID string, sourceScope models.Scope, sourceTemplateID string, destScope models.Scope) (*models.Template, error) {
	grant, err := requireManager(ctx, s.identity, userID, destScope)
	if err != nil {
		return nil, err
	}

	// Global templates are clonable by any tenant admin; tenant sources
	// require authoring rights on that tenant.
	if !sourceScope.IsGlobal() && !grant.CanManage(sourceScope) {
		return nil, fmt.Errorf("%w: %s may not read scope %s", ErrForbidden, userID, sourceScope)
	}

	source, err := s.persistence.TemplateRepository().GetByID(ctx, sourceTemplateID, sourceScope)
	if err != nil {
		return nil, fmt.Errorf("failed to get source template: %w", err)
	}

	clone, err := cloneTemplate(source, destScope, userID)
	if err != nil {
		return nil, err
	}

	// A name clash in the destination scope gets a suffix rather than an
	// error; cloning a global script into a tenant that already adopted it
	// is routine.
	baseName := clone.Name
	for attempt := 0; ; attempt++ {
		err = s.persistence.TemplateRepository().Create(ctx, clone)
		if err == nil {
			break
		}

		if !persistence.IsDuplicateTemplateName(err) || attempt >= 5 {
			return nil, fmt.Errorf("failed to create clone: %w", err)
		}

		if attempt == 0 {
			clone.Name = baseName + " (copy)"
		} else {
			clone.Name = fmt.Sprintf("%s (copy %d)", baseName, attempt+1)
		}
	}

	s.logger.InfoContext(ctx, "template cloned",
		"source_template_id", sourceTemplateID, "template_id", clone.ID,
		"scope", destScope.String())

	event := events.TemplateCreated{
		BaseEvent: events.NewBaseEvent(events.TemplateCreatedEvent, clone.ID),
		Name:      clone.Name,
		CreatedBy: userID,
	}
	event.Scope = destScope.String()
	publish(ctx, s.bus, s.logger, clone.ID, event)

	return clone, nil
}

func cloneTemplate(source *models.Template, destScope models.Scope, userID string) (*models.Template, error) {
	clone := &models.Template{
		Scope:            destScope,
		Name:             source.Name,
		Description:      source.Description,
		Icon:             source.Icon,
		Color:            source.Color,
		Kind:             source.Kind,
		Active:           true,
		Status:           models.TemplateStatusDraft,
		SourceTemplateID: source.ID,
		UpdatedBy:        userID,
	}

	nodeIDs := make(map[string]string, len(source.Nodes))

	for _, node := range source.Nodes {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate node ID: %w", err)
		}

		nodeIDs[node.ID] = id.String()

		copied := *node
		copied.ID = id.String()
		copied.TemplateID = ""

		if node.Style != nil {
			style := *node.Style
			copied.Style = &style
		}

		clone.Nodes = append(clone.Nodes, &copied)
	}

	for _, option := range source.Options {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate option ID: %w", err)
		}

		copied := *option
		copied.ID = id.String()
		copied.TemplateID = ""
		copied.SourceNodeID = nodeIDs[option.SourceNodeID]

		if option.TargetNodeID != nil && *option.TargetNodeID != "" {
			target := nodeIDs[*option.TargetNodeID]
			copied.TargetNodeID = &target
		}

		clone.Options = append(clone.Options, &copied)
	}

	for _, link := range source.Links {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate link ID: %w", err)
		}

		copied := *link
		copied.ID = id.String()
		copied.TemplateID = ""
		copied.SourceNodeID = nodeIDs[link.SourceNodeID]

		clone.Links = append(clone.Links, &copied)
	}

	for _, style := range source.Styles {
		copied := *style
		copied.TemplateID = ""
		clone.Styles = append(clone.Styles, &copied)
	}

	return clone, nil
}

func (s *Approval) publishChanged(ctx context.Context, template *models.Template, userID, change string) {
	event := events.TemplateChanged{
		BaseEvent: events.NewBaseEvent(events.TemplateChangedEvent, template.ID),
		Version:   template.Version,
		ChangedBy: userID,
		Change:    change,
	}
	event.Scope = template.Scope.String()
	publish(ctx, s.bus, s.logger, template.ID, event)
}
