package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/events"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/otelhelper"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StepBudget bounds the number of recorded steps per instance. Authored
// cycles are legal, so a runaway loop would otherwise grow history forever.
const StepBudget = 1000

// Instance executes template runs: starting them, advancing them one choice
// at a time and finishing them.
type Instance struct {
	persistence persistence.Persistence
	identity    identity.Resolver
	bus         eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewInstance creates a new instance execution service. A nil tracer falls
// back to the global provider.
func NewInstance(p persistence.Persistence, resolver identity.Resolver, bus eventbus.EventPublisher, tracer trace.Tracer, logger *slog.Logger) *Instance {
	if tracer == nil {
		tracer = otel.Tracer("pathway")
	}

	return &Instance{
		persistence: p,
		identity:    resolver,
		bus:         bus,
		tracer:      tracer,
		logger:      logger.With("service", "instance"),
	}
}

// StartInstanceRequest carries the portal context for a new run.
type StartInstanceRequest struct {
	TemplateID string `validate:"required"`
	Reference  string
	Category   string
}

// Start begins a run of an approved template. The template is resolved the
// way the tenant sees it (own scope first, global fallback) and the run
// lands on the template's entry node.
func (s *Instance) Start(ctx context.Context, userID, tenantID string, req StartInstanceRequest) (*models.Instance, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "instance.start",
		attribute.String(otelhelper.TemplateIDKey, req.TemplateID),
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.UserIDKey, userID),
	)
	defer span.End()

	_, err := requireRunner(ctx, s.identity, userID, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	template, err := s.persistence.TemplateRepository().GetForRuntime(ctx, req.TemplateID, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	if !template.Status.Runnable() || !template.Active {
		err = fmt.Errorf("%w: status %s, active %t", ErrTemplateNotRunnable, template.Status, template.Active)
		otelhelper.SetError(span, err)

		return nil, err
	}

	entry := template.EntryNode()
	if entry == nil {
		otelhelper.SetError(span, ErrEmptyGraph)

		return nil, ErrEmptyGraph
	}

	instance := &models.Instance{
		TemplateID:    template.ID,
		TenantID:      tenantID,
		Reference:     req.Reference,
		Category:      req.Category,
		CurrentNodeID: entry.ID,
		Status:        models.InstanceStatusInProgress,
		CreatedBy:     userID,
	}

	err = s.persistence.InstanceRepository().Create(ctx, instance)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.InstanceIDKey, instance.ID))
	s.logger.InfoContext(ctx, "instance started",
		"instance_id", instance.ID, "template_id", template.ID,
		"tenant_id", tenantID, "entry_node", entry.ID)

	event := events.InstanceStarted{
		BaseEvent:  events.NewBaseEvent(events.InstanceStartedEvent, template.ID),
		InstanceID: instance.ID,
		TenantID:   tenantID,
		StartedBy:  userID,
		EntryNode:  entry.ID,
	}
	publish(ctx, s.bus, s.logger, instance.ID, event)

	return instance, nil
}

// Advance applies one choice to a running instance. Exactly one history
// entry is appended per successful call; a concurrent advance from the same
// state loses with ErrVersionConflict and changes nothing.
func (s *Instance) Advance(ctx context.Context, userID, tenantID, instanceID, choiceID string) (*models.Instance, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "instance.advance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.String(otelhelper.ChoiceIDKey, choiceID),
	)
	defer span.End()

	_, err := requireRunner(ctx, s.identity, userID, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	instance, err := s.persistence.InstanceRepository().GetByID(ctx, instanceID, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance.Status != models.InstanceStatusInProgress {
		err = fmt.Errorf("%w: status %s", ErrInstanceNotRunning, instance.Status)
		otelhelper.SetError(span, err)

		return nil, err
	}

	if len(instance.History) >= StepBudget {
		otelhelper.SetError(span, ErrStepBudgetExhausted)

		return nil, fmt.Errorf("%w: %d steps", ErrStepBudgetExhausted, len(instance.History))
	}

	template, err := s.persistence.TemplateRepository().GetForRuntime(ctx, instance.TemplateID, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	step, err := s.resolveChoice(ctx, template, instance, tenantID, choiceID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	expected := instance.Version

	err = s.persistence.InstanceRepository().ApplyStep(ctx, instance, expected, step)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to apply step: %w", err)
	}

	span.SetAttributes(attribute.String(otelhelper.NodeIDKey, step.ToNodeID))
	s.logger.InfoContext(ctx, "instance advanced",
		"instance_id", instance.ID, "from_node", step.FromNodeID,
		"to_node", step.ToNodeID, "choice", choiceID, "seq", step.Seq)

	advanced := events.InstanceAdvanced{
		BaseEvent:  events.NewBaseEvent(events.InstanceAdvancedEvent, instance.TemplateID),
		InstanceID: instance.ID,
		TenantID:   tenantID,
		FromNodeID: step.FromNodeID,
		ToNodeID:   step.ToNodeID,
		ChoiceID:   choiceID,
		Seq:        step.Seq,
	}
	publish(ctx, s.bus, s.logger, instance.ID, advanced)

	if instance.Status == models.InstanceStatusCompleted {
		s.publishFinished(ctx, instance)
	}

	return instance, nil
}

// resolveChoice maps a choice id to the step it produces and moves the
// instance's in-memory position. The legal choice set of the current node is
// its authored options when the type branches, its node links, and the
// synthesized continue when the type auto-continues.
func (s *Instance) resolveChoice(ctx context.Context, template *models.Template, instance *models.Instance, tenantID, choiceID string) (*models.HistoryEntry, error) {
	current := template.NodeByID(instance.CurrentNodeID)
	if current == nil {
		return nil, fmt.Errorf("%w: current node %s", ErrDanglingTarget, instance.CurrentNodeID)
	}

	step := &models.HistoryEntry{
		FromNodeID: current.ID,
		ChoiceID:   choiceID,
	}

	if choiceID == models.ContinueChoiceID {
		if !current.Type.AutoContinue() {
			return nil, fmt.Errorf("%w: %q on %s node", ErrUnknownChoice, choiceID, current.Type)
		}

		next := template.NodeAfter(current)
		if next == nil {
			return nil, fmt.Errorf("%w: after node %s", ErrNoNextNode, current.ID)
		}

		step.ChoiceKind = models.ChoiceKindContinue
		s.land(instance, step, next)

		return step, nil
	}

	if current.Type.SupportsBranching() {
		if option := template.OptionByID(choiceID); option != nil && option.SourceNodeID == current.ID {
			if option.Dangling() {
				return nil, fmt.Errorf("%w: option %s", ErrDanglingTarget, option.ID)
			}

			target := template.NodeByID(*option.TargetNodeID)
			if target == nil {
				return nil, fmt.Errorf("%w: option %s", ErrDanglingTarget, option.ID)
			}

			step.ChoiceKind = models.ChoiceKindOption
			s.land(instance, step, target)

			return step, nil
		}
	}

	if link := template.LinkByID(choiceID); link != nil && link.SourceNodeID == current.ID {
		return s.followLink(ctx, instance, step, link, tenantID)
	}

	return nil, fmt.Errorf("%w: %q on node %s", ErrUnknownChoice, choiceID, current.ID)
}

// land moves the instance onto a node within the current template. Arriving
// on a terminal node completes the run.
func (s *Instance) land(instance *models.Instance, step *models.HistoryEntry, target *models.Node) {
	step.ToNodeID = target.ID
	instance.CurrentNodeID = target.ID

	if target.Type.Terminal() {
		instance.Status = models.InstanceStatusCompleted
	}
}

// followLink jumps the instance into another template, landing on that
// template's entry node. The target is resolved with the same tenant-first
// fallback as Start, so the jump sees the same script the tenant would.
func (s *Instance) followLink(ctx context.Context, instance *models.Instance, step *models.HistoryEntry, link *models.NodeLink, tenantID string) (*models.HistoryEntry, error) {
	target, err := s.persistence.TemplateRepository().GetForRuntime(ctx, link.TargetTemplateID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve link target: %w", err)
	}

	if !target.Status.Runnable() || !target.Active {
		return nil, fmt.Errorf("%w: link target %s", ErrTemplateNotRunnable, target.ID)
	}

	entry := target.EntryNode()
	if entry == nil {
		return nil, fmt.Errorf("%w: link target %s", ErrEmptyGraph, target.ID)
	}

	step.ChoiceKind = models.ChoiceKindLink
	step.ToTemplateID = target.ID
	instance.TemplateID = target.ID

	s.land(instance, step, entry)

	return step, nil
}

// Abandon marks a running instance abandoned. No history is recorded; the
// trail ends where the receptionist stopped.
func (s *Instance) Abandon(ctx context.Context, userID, tenantID, instanceID string) (*models.Instance, error) {
	_, err := requireRunner(ctx, s.identity, userID, tenantID)
	if err != nil {
		return nil, err
	}

	instance, err := s.persistence.InstanceRepository().GetByID(ctx, instanceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if instance.Status != models.InstanceStatusInProgress {
		return nil, fmt.Errorf("%w: status %s", ErrInstanceNotRunning, instance.Status)
	}

	expected := instance.Version
	instance.Status = models.InstanceStatusAbandoned

	err = s.persistence.InstanceRepository().UpdateStatus(ctx, instance, expected)
	if err != nil {
		return nil, fmt.Errorf("failed to abandon instance: %w", err)
	}

	s.logger.InfoContext(ctx, "instance abandoned",
		"instance_id", instance.ID, "tenant_id", tenantID, "steps", len(instance.History))
	s.publishFinished(ctx, instance)

	return instance, nil
}

// Get returns one of the tenant's runs with its full history.
func (s *Instance) Get(ctx context.Context, userID, tenantID, instanceID string) (*models.Instance, error) {
	_, err := requireRunner(ctx, s.identity, userID, tenantID)
	if err != nil {
		return nil, err
	}

	instance, err := s.persistence.InstanceRepository().GetByID(ctx, instanceID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// List returns the tenant's runs, optionally filtered by status.
func (s *Instance) List(ctx context.Context, userID, tenantID string, opts persistence.ListInstancesOptions) ([]*models.Instance, error) {
	_, err := requireRunner(ctx, s.identity, userID, tenantID)
	if err != nil {
		return nil, err
	}

	instances, err := s.persistence.InstanceRepository().List(ctx, tenantID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return instances, nil
}

func (s *Instance) publishFinished(ctx context.Context, instance *models.Instance) {
	event := events.InstanceFinished{
		BaseEvent:  events.NewBaseEvent(events.InstanceFinishedEvent, instance.TemplateID),
		InstanceID: instance.ID,
		TenantID:   instance.TenantID,
		Status:     string(instance.Status),
		Steps:      len(instance.History),
	}

	if !instance.CreatedAt.IsZero() {
		event.Duration = instance.UpdatedAt.Sub(instance.CreatedAt)
	}

	publish(ctx, s.bus, s.logger, instance.ID, event)
}
