package models

// StyleOverride carries per-node colour overrides. A nil override means the
// node renders with its template's per-type default.
type StyleOverride struct {
	Background string `json:"background,omitempty"`
	Text       string `json:"text,omitempty"`
	Border     string `json:"border,omitempty"`
}

// NodeStyle is the per-(template, node type) visual default. One row per
// pair.
type NodeStyle struct {
	TemplateID string   `json:"template_id"`
	NodeType   NodeType `json:"node_type"  validate:"required"`
	Background string   `json:"background,omitempty"`
	Text       string   `json:"text,omitempty"`
	Border     string   `json:"border,omitempty"`
}
