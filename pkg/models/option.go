package models

// AnswerOption is one labelled outgoing choice from a node. The target is
// nullable: an option whose target has been removed keeps its label and
// dangles until the author rewires it.
type AnswerOption struct {
	ID           string  `json:"id"`
	TemplateID   string  `json:"template_id"`
	SourceNodeID string  `json:"source_node_id" validate:"required"`
	Label        string  `json:"label"          validate:"required,min=1"`
	TargetNodeID *string `json:"target_node_id,omitempty"`
	ActionKey    string  `json:"action_key,omitempty"` // Built-in behaviour key, e.g. "open-reference"
	SourceHandle string  `json:"source_handle,omitempty"`
	TargetHandle string  `json:"target_handle,omitempty"`
	SortOrder    int     `json:"sort_order"`
}

// Dangling reports whether the option has no wired target.
func (o *AnswerOption) Dangling() bool {
	return o.TargetNodeID == nil || *o.TargetNodeID == ""
}
