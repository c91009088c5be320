package models

import "time"

// InstanceStatus is the run state of one concrete execution.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusAbandoned  InstanceStatus = "abandoned"
)

// Terminal reports whether the instance accepts no further transitions.
func (s InstanceStatus) Terminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusAbandoned
}

// ChoiceKind records which kind of choice produced a history step.
type ChoiceKind string

const (
	ChoiceKindOption   ChoiceKind = "option"   // An authored answer option
	ChoiceKindLink     ChoiceKind = "link"     // A cross-template node link
	ChoiceKindContinue ChoiceKind = "continue" // The synthesized single continue
)

// ContinueChoiceID is the id the runtime accepts for the implicit continue
// choice on non-branching nodes.
const ContinueChoiceID = "continue"

// HistoryEntry is one recorded transition of an instance. History rows are
// append-only; Seq starts at 1 and increases by one per successful advance.
type HistoryEntry struct {
	Seq          int        `json:"seq"`
	FromNodeID   string     `json:"from_node_id"`
	ChoiceKind   ChoiceKind `json:"choice_kind"`
	ChoiceID     string     `json:"choice_id"`
	ToNodeID     string     `json:"to_node_id"`
	ToTemplateID string     `json:"to_template_id,omitempty"` // Set only on cross-template jumps
	RecordedAt   time.Time  `json:"recorded_at"`
}

// Instance is one concrete run of a template. TemplateID tracks the template
// the run is currently inside; it changes when a link jump crosses into
// another template.
type Instance struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"template_id"`
	TenantID      string         `json:"tenant_id"`
	Reference     string         `json:"reference,omitempty"` // Free-text label, e.g. a document number
	Category      string         `json:"category,omitempty"`
	CurrentNodeID string         `json:"current_node_id"`
	Status        InstanceStatus `json:"status"`
	Version       int64          `json:"version"`
	History       []HistoryEntry `json:"history"`
	CreatedBy     string         `json:"created_by"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}
