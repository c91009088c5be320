// Package events defines event types and structures for template and instance
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries all template and instance lifecycle events.
const Topic = "pathway.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Template lifecycle events.
	TemplateCreatedEvent  EventType = "template.created"
	TemplateChangedEvent  EventType = "template.changed"
	TemplateApprovedEvent EventType = "template.approved"
	TemplateDeletedEvent  EventType = "template.deleted"

	// Instance lifecycle events.
	InstanceStartedEvent  EventType = "instance.started"
	InstanceAdvancedEvent EventType = "instance.advanced"
	InstanceFinishedEvent EventType = "instance.finished"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TemplateID string         `json:"template_id"`
	Scope      string         `json:"scope,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type TemplateCreated struct {
	BaseEvent

	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

func (t TemplateCreated) GetType() EventType {
	return TemplateCreatedEvent
}

// TemplateChanged covers metadata edits, graph mutations and lifecycle
// transitions other than approval.
type TemplateChanged struct {
	BaseEvent

	Version   int64  `json:"version"`
	ChangedBy string `json:"changed_by"`
	Change    string `json:"change,omitempty"` // e.g. "node.created", "status.pending_review"
}

func (t TemplateChanged) GetType() EventType {
	return TemplateChangedEvent
}

type TemplateApproved struct {
	BaseEvent

	ApprovedBy string `json:"approved_by"`
}

func (t TemplateApproved) GetType() EventType {
	return TemplateApprovedEvent
}

type TemplateDeleted struct {
	BaseEvent

	DeletedBy string `json:"deleted_by"`
}

func (t TemplateDeleted) GetType() EventType {
	return TemplateDeletedEvent
}

type InstanceStarted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	TenantID   string `json:"tenant_id"`
	StartedBy  string `json:"started_by"`
	EntryNode  string `json:"entry_node"`
}

func (i InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceAdvanced struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	TenantID   string `json:"tenant_id"`
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	ChoiceID   string `json:"choice_id"`
	Seq        int    `json:"seq"`
}

func (i InstanceAdvanced) GetType() EventType {
	return InstanceAdvancedEvent
}

// InstanceFinished fires for both completion and abandonment; Status tells
// them apart.
type InstanceFinished struct {
	BaseEvent

	InstanceID string        `json:"instance_id"`
	TenantID   string        `json:"tenant_id"`
	Status     string        `json:"status"`
	Steps      int           `json:"steps"`
	Duration   time.Duration `json:"duration"`
}

func (i InstanceFinished) GetType() EventType {
	return InstanceFinishedEvent
}

func NewBaseEvent(eventType EventType, templateID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		TemplateID: templateID,
		Metadata:   make(map[string]any),
	}
}
