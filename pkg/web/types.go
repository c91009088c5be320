package web

import (
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// CreateTemplateRequest is the payload for creating a draft template.
type CreateTemplateRequest struct {
	Name        string `json:"name" validate:"required,min=3"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// UpdateTemplateRequest is the payload for partially updating template
// metadata. Nil fields are left untouched.
type UpdateTemplateRequest struct {
	Version     int64   `json:"version" validate:"required,min=1"`
	Name        *string `json:"name,omitempty" validate:"omitempty,min=3"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Color       *string `json:"color,omitempty"`
	Kind        *string `json:"kind,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// LifecycleRequest carries the version stamp for submit, approve and reopen.
type LifecycleRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

// RequestChangesRequest sends a template back to its author with a note.
type RequestChangesRequest struct {
	Version int64  `json:"version" validate:"required,min=1"`
	Note    string `json:"note,omitempty"`
}

// CloneTemplateRequest names the destination scope for a clone. An empty
// scope clones into the caller's own scope.
type CloneTemplateRequest struct {
	DestScope string `json:"dest_scope,omitempty"`
}

// CreateNodeRequest is the payload for adding a node to a template graph.
type CreateNodeRequest struct {
	Version int64                 `json:"version" validate:"required,min=1"`
	Type    string                `json:"type" validate:"required"`
	Title   string                `json:"title" validate:"required"`
	Body    string                `json:"body,omitempty"`
	Entry   bool                  `json:"entry,omitempty"`
	Style   *models.StyleOverride `json:"style,omitempty"`
}

// UpdateNodeRequest partially updates a node. ClearStyle drops the per-node
// override so the node falls back to the template's per-type default.
type UpdateNodeRequest struct {
	Version    int64                 `json:"version" validate:"required,min=1"`
	Type       *string               `json:"type,omitempty"`
	Title      *string               `json:"title,omitempty" validate:"omitempty,min=1"`
	Body       *string               `json:"body,omitempty"`
	Entry      *bool                 `json:"entry,omitempty"`
	Style      *models.StyleOverride `json:"style,omitempty"`
	ClearStyle bool                  `json:"clear_style,omitempty"`
}

// RepositionRequest replaces the diagram coordinates of a batch of nodes.
type RepositionRequest struct {
	Version   int64                      `json:"version" validate:"required,min=1"`
	Positions []persistence.NodePosition `json:"positions" validate:"required,min=1,dive"`
}

// CreateOptionRequest adds an answer option to a node.
type CreateOptionRequest struct {
	Version      int64   `json:"version" validate:"required,min=1"`
	SourceNodeID string  `json:"source_node_id" validate:"required"`
	Label        string  `json:"label" validate:"required"`
	TargetNodeID *string `json:"target_node_id,omitempty"`
	ActionKey    string  `json:"action_key,omitempty"`
	SourceHandle string  `json:"source_handle,omitempty"`
	TargetHandle string  `json:"target_handle,omitempty"`
}

// UpdateOptionRequest partially updates an option. ClearTarget detaches the
// option so it dangles until rewired.
type UpdateOptionRequest struct {
	Version      int64   `json:"version" validate:"required,min=1"`
	Label        *string `json:"label,omitempty" validate:"omitempty,min=1"`
	TargetNodeID *string `json:"target_node_id,omitempty"`
	ClearTarget  bool    `json:"clear_target,omitempty"`
	ActionKey    *string `json:"action_key,omitempty"`
	SourceHandle *string `json:"source_handle,omitempty"`
	TargetHandle *string `json:"target_handle,omitempty"`
	SortOrder    *int    `json:"sort_order,omitempty"`
}

// CreateLinkRequest jumps from a node into another template.
type CreateLinkRequest struct {
	Version          int64  `json:"version" validate:"required,min=1"`
	SourceNodeID     string `json:"source_node_id" validate:"required"`
	TargetTemplateID string `json:"target_template_id" validate:"required"`
}

// StyleRequest sets the template's default colours for the node type named
// in the path.
type StyleRequest struct {
	Version    int64  `json:"version" validate:"required,min=1"`
	Background string `json:"background,omitempty"`
	Text       string `json:"text,omitempty"`
	Border     string `json:"border,omitempty"`
}

// CopyStylesRequest copies per-type styles from another template.
type CopyStylesRequest struct {
	Version          int64  `json:"version" validate:"required,min=1"`
	SourceTemplateID string `json:"source_template_id" validate:"required"`
	Overwrite        bool   `json:"overwrite,omitempty"`
}

// StartInstanceRequest begins a run of an approved template.
type StartInstanceRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	Reference  string `json:"reference,omitempty"`
	Category   string `json:"category,omitempty"`
}

// AdvanceInstanceRequest moves a run one step forward.
type AdvanceInstanceRequest struct {
	ChoiceID string `json:"choice_id" validate:"required"`
}
