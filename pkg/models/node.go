package models

// NodeType classifies what a node does when the runtime lands on it.
type NodeType string

const (
	NodeTypeInstruction NodeType = "instruction" // Text shown to the operator, single continue
	NodeTypeQuestion    NodeType = "question"    // Branches through authored answer options
	NodeTypeEnd         NodeType = "end"         // Terminal, completes the instance
	NodeTypePanel       NodeType = "panel"       // Informational panel, single continue
	NodeTypeReference   NodeType = "reference"   // Opens reference material, single continue
)

// AllNodeTypes lists every valid node type, used for input validation.
var AllNodeTypes = []NodeType{
	NodeTypeInstruction,
	NodeTypeQuestion,
	NodeTypeEnd,
	NodeTypePanel,
	NodeTypeReference,
}

// Valid reports whether the type is one of the closed set.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeInstruction, NodeTypeQuestion, NodeTypeEnd, NodeTypePanel, NodeTypeReference:
		return true
	default:
		return false
	}
}

// SupportsBranching reports whether authors may attach answer options to
// nodes of this type. Only questions branch.
func (t NodeType) SupportsBranching() bool {
	return t == NodeTypeQuestion
}

// Terminal reports whether reaching a node of this type completes the run.
func (t NodeType) Terminal() bool {
	return t == NodeTypeEnd
}

// AutoContinue reports whether the runtime synthesizes a single implicit
// "continue" choice for nodes of this type.
func (t NodeType) AutoContinue() bool {
	switch t {
	case NodeTypeInstruction, NodeTypePanel, NodeTypeReference:
		return true
	default:
		return false
	}
}

// Node is one step of a template's script.
type Node struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	Type       NodeType       `json:"type"        validate:"required"`
	Title      string         `json:"title"       validate:"required,min=1"`
	Body       string         `json:"body"` // Opaque rich-text payload, not interpreted here
	SortOrder  int            `json:"sort_order"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`
	Entry      bool           `json:"entry"`
	Style      *StyleOverride `json:"style,omitempty"`
}
