package models

// NodeLink hands execution off from a node to another template's entry
// node. Links are the only way a run crosses template boundaries.
type NodeLink struct {
	ID               string `json:"id"`
	TemplateID       string `json:"template_id"`
	SourceNodeID     string `json:"source_node_id"     validate:"required"`
	TargetTemplateID string `json:"target_template_id" validate:"required"`
	SortOrder        int    `json:"sort_order"`
}
