package models

import (
	"sort"
	"time"
)

// TemplateStatus is the approval lifecycle state of a template.
type TemplateStatus string

const (
	TemplateStatusDraft           TemplateStatus = "draft"            // Editable, not runnable
	TemplateStatusPendingReview   TemplateStatus = "pending_review"   // Frozen, awaiting a reviewer
	TemplateStatusApproved        TemplateStatus = "approved"         // Frozen, runnable
	TemplateStatusChangesRequired TemplateStatus = "changes_required" // Editable, reviewer sent it back
)

// Editable reports whether authors may structurally mutate the template's
// graph in this state.
func (s TemplateStatus) Editable() bool {
	return s == TemplateStatusDraft || s == TemplateStatusChangesRequired
}

// Runnable reports whether new instances may be started from this state.
func (s TemplateStatus) Runnable() bool {
	return s == TemplateStatusApproved
}

// Template is one authored workflow script with its full graph loaded as
// flat slices. Nodes, options and links reference each other by id only, so
// authored cycles are plain data.
type Template struct {
	ID               string          `json:"id"`
	Scope            Scope           `json:"scope"`
	Name             string          `json:"name"        validate:"required,min=3"`
	Description      string          `json:"description"`
	Icon             string          `json:"icon,omitempty"`
	Color            string          `json:"color,omitempty"`
	Kind             string          `json:"kind,omitempty"` // Workflow-type tag, e.g. "document", "call"
	Active           bool            `json:"active"`
	Status           TemplateStatus  `json:"status"`
	ReviewNote       string          `json:"review_note,omitempty"`
	ApprovedBy       string          `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	SourceTemplateID string          `json:"source_template_id,omitempty"` // Clone provenance, never re-synced
	Version          int64           `json:"version"`
	Nodes            []*Node         `json:"nodes"`
	Options          []*AnswerOption `json:"options"`
	Links            []*NodeLink     `json:"links"`
	Styles           []*NodeStyle    `json:"styles,omitempty"`
	UpdatedBy        string          `json:"updated_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        *time.Time      `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (t *Template) NodeByID(id string) *Node {
	for _, node := range t.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// OptionByID returns the answer option with the given id, or nil.
func (t *Template) OptionByID(id string) *AnswerOption {
	for _, option := range t.Options {
		if option.ID == id {
			return option
		}
	}

	return nil
}

// LinkByID returns the node link with the given id, or nil.
func (t *Template) LinkByID(id string) *NodeLink {
	for _, link := range t.Links {
		if link.ID == id {
			return link
		}
	}

	return nil
}

// OptionsFrom returns the authored options whose source is the given node,
// ordered by sort order.
func (t *Template) OptionsFrom(nodeID string) []*AnswerOption {
	options := make([]*AnswerOption, 0)

	for _, option := range t.Options {
		if option.SourceNodeID == nodeID {
			options = append(options, option)
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].SortOrder < options[j].SortOrder
	})

	return options
}

// LinksFrom returns the links whose source is the given node, ordered by
// sort order.
func (t *Template) LinksFrom(nodeID string) []*NodeLink {
	links := make([]*NodeLink, 0)

	for _, link := range t.Links {
		if link.SourceNodeID == nodeID {
			links = append(links, link)
		}
	}

	sort.SliceStable(links, func(i, j int) bool {
		return links[i].SortOrder < links[j].SortOrder
	})

	return links
}

// StyleFor returns the per-type default style, or nil when none is set.
func (t *Template) StyleFor(nodeType NodeType) *NodeStyle {
	for _, style := range t.Styles {
		if style.NodeType == nodeType {
			return style
		}
	}

	return nil
}

// MaxSortOrder returns the highest node sort order, or -1 for an empty
// graph.
func (t *Template) MaxSortOrder() int {
	maxOrder := -1

	for _, node := range t.Nodes {
		if node.SortOrder > maxOrder {
			maxOrder = node.SortOrder
		}
	}

	return maxOrder
}

// EntryNode resolves where a run of this template begins. An explicitly
// flagged entry node wins. Otherwise the lowest sort-order node with no
// wired incoming option is used, and if every node has an incoming option
// (a fully cyclic graph) the lowest sort-order node overall is the
// deterministic fallback. Returns nil for an empty graph.
func (t *Template) EntryNode() *Node {
	if len(t.Nodes) == 0 {
		return nil
	}

	ordered := make([]*Node, len(t.Nodes))
	copy(ordered, t.Nodes)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortOrder != ordered[j].SortOrder {
			return ordered[i].SortOrder < ordered[j].SortOrder
		}

		return ordered[i].ID < ordered[j].ID
	})

	for _, node := range ordered {
		if node.Entry {
			return node
		}
	}

	incoming := make(map[string]bool, len(t.Nodes))

	for _, option := range t.Options {
		if !option.Dangling() {
			incoming[*option.TargetNodeID] = true
		}
	}

	for _, node := range ordered {
		if !incoming[node.ID] {
			return node
		}
	}

	return ordered[0]
}

// NodeAfter returns the next node by sort order following the given node,
// used for the implicit continue on non-branching nodes. Returns nil when
// the node is last.
func (t *Template) NodeAfter(node *Node) *Node {
	var next *Node

	for _, candidate := range t.Nodes {
		if candidate.ID == node.ID {
			continue
		}

		if candidate.SortOrder < node.SortOrder {
			continue
		}

		if candidate.SortOrder == node.SortOrder && candidate.ID <= node.ID {
			continue
		}

		if next == nil || candidate.SortOrder < next.SortOrder ||
			(candidate.SortOrder == next.SortOrder && candidate.ID < next.ID) {
			next = candidate
		}
	}

	return next
}
