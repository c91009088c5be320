package memory

import (
	"context"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// GraphRepository applies structural edits to in-memory template graphs.
type GraphRepository struct {
	store *Persistence
}

func (r *GraphRepository) CreateNode(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("CreateNode", templateID, node.ID, err)
	}

	if node.ID == "" {
		node.ID = newID()
	}

	node.TemplateID = templateID

	copied := *node
	if node.Style != nil {
		style := *node.Style
		copied.Style = &style
	}

	template.Nodes = append(template.Nodes, &copied)
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) UpdateNode(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("UpdateNode", templateID, node.ID, err)
	}

	stored := template.NodeByID(node.ID)
	if stored == nil {
		return persistence.NewGraphError("UpdateNode", templateID, node.ID, persistence.ErrNodeNotFound)
	}

	stored.Type = node.Type
	stored.Title = node.Title
	stored.Body = node.Body
	stored.SortOrder = node.SortOrder
	stored.PositionX = node.PositionX
	stored.PositionY = node.PositionY
	stored.Entry = node.Entry

	if node.Style != nil {
		style := *node.Style
		stored.Style = &style
	} else {
		stored.Style = nil
	}

	r.store.touch(template)

	return nil
}

func (r *GraphRepository) DeleteNode(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("DeleteNode", templateID, nodeID, err)
	}

	if template.NodeByID(nodeID) == nil {
		return persistence.NewGraphError("DeleteNode", templateID, nodeID, persistence.ErrNodeNotFound)
	}

	nodes := template.Nodes[:0]

	for _, node := range template.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	template.Nodes = nodes

	// Outgoing options go with the node; inbound options keep their label
	// and dangle.
	options := template.Options[:0]

	for _, option := range template.Options {
		if option.SourceNodeID == nodeID {
			continue
		}

		if !option.Dangling() && *option.TargetNodeID == nodeID {
			option.TargetNodeID = nil
		}

		options = append(options, option)
	}

	template.Options = options

	links := template.Links[:0]

	for _, link := range template.Links {
		if link.SourceNodeID != nodeID {
			links = append(links, link)
		}
	}

	template.Links = links
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) CreateOption(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("CreateOption", templateID, option.ID, err)
	}

	if option.ID == "" {
		option.ID = newID()
	}

	option.TemplateID = templateID

	copied := *option
	if option.TargetNodeID != nil {
		target := *option.TargetNodeID
		copied.TargetNodeID = &target
	}

	template.Options = append(template.Options, &copied)
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) UpdateOption(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("UpdateOption", templateID, option.ID, err)
	}

	stored := template.OptionByID(option.ID)
	if stored == nil {
		return persistence.NewGraphError("UpdateOption", templateID, option.ID, persistence.ErrOptionNotFound)
	}

	stored.Label = option.Label
	stored.ActionKey = option.ActionKey
	stored.SourceHandle = option.SourceHandle
	stored.TargetHandle = option.TargetHandle
	stored.SortOrder = option.SortOrder

	if option.TargetNodeID != nil {
		target := *option.TargetNodeID
		stored.TargetNodeID = &target
	} else {
		stored.TargetNodeID = nil
	}

	r.store.touch(template)

	return nil
}

func (r *GraphRepository) DeleteOption(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, optionID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("DeleteOption", templateID, optionID, err)
	}

	if template.OptionByID(optionID) == nil {
		return persistence.NewGraphError("DeleteOption", templateID, optionID, persistence.ErrOptionNotFound)
	}

	options := template.Options[:0]

	for _, option := range template.Options {
		if option.ID != optionID {
			options = append(options, option)
		}
	}

	template.Options = options
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) CreateLink(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, link *models.NodeLink) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("CreateLink", templateID, link.ID, err)
	}

	if link.ID == "" {
		link.ID = newID()
	}

	link.TemplateID = templateID

	copied := *link
	template.Links = append(template.Links, &copied)
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) DeleteLink(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, linkID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("DeleteLink", templateID, linkID, err)
	}

	if template.LinkByID(linkID) == nil {
		return persistence.NewGraphError("DeleteLink", templateID, linkID, persistence.ErrLinkNotFound)
	}

	links := template.Links[:0]

	for _, link := range template.Links {
		if link.ID != linkID {
			links = append(links, link)
		}
	}

	template.Links = links
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) RepositionNodes(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, positions []persistence.NodePosition) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("RepositionNodes", templateID, "", err)
	}

	// Validate the entire batch before touching any position.
	for _, position := range positions {
		if template.NodeByID(position.NodeID) == nil {
			return persistence.NewGraphError("RepositionNodes", templateID, position.NodeID, persistence.ErrForeignNode)
		}
	}

	for _, position := range positions {
		node := template.NodeByID(position.NodeID)
		node.PositionX = position.X
		node.PositionY = position.Y
	}

	r.store.touch(template)

	return nil
}

func (r *GraphRepository) UpsertStyle(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, style *models.NodeStyle) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("UpsertStyle", templateID, string(style.NodeType), err)
	}

	style.TemplateID = templateID

	if existing := template.StyleFor(style.NodeType); existing != nil {
		existing.Background = style.Background
		existing.Text = style.Text
		existing.Border = style.Border
	} else {
		copied := *style
		template.Styles = append(template.Styles, &copied)
	}

	r.store.touch(template)

	return nil
}

func (r *GraphRepository) DeleteStyle(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeType models.NodeType) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("DeleteStyle", templateID, string(nodeType), err)
	}

	if template.StyleFor(nodeType) == nil {
		return persistence.NewGraphError("DeleteStyle", templateID, string(nodeType), persistence.ErrStyleNotFound)
	}

	styles := template.Styles[:0]

	for _, style := range template.Styles {
		if style.NodeType != nodeType {
			styles = append(styles, style)
		}
	}

	template.Styles = styles
	r.store.touch(template)

	return nil
}

func (r *GraphRepository) CopyStyles(_ context.Context, templateID string, scope models.Scope, expectedVersion int64, sourceTemplateID string, overwrite bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	template, err := r.store.editableTemplate(templateID, scope, expectedVersion)
	if err != nil {
		return persistence.NewGraphError("CopyStyles", templateID, sourceTemplateID, err)
	}

	source, ok := r.store.templates[sourceTemplateID]
	if !ok || source.DeletedAt != nil {
		return persistence.NewGraphError("CopyStyles", templateID, sourceTemplateID, persistence.ErrTemplateNotFound)
	}

	for _, style := range source.Styles {
		existing := template.StyleFor(style.NodeType)

		if existing != nil && !overwrite {
			continue
		}

		if existing != nil {
			existing.Background = style.Background
			existing.Text = style.Text
			existing.Border = style.Border

			continue
		}

		copied := *style
		copied.TemplateID = templateID
		template.Styles = append(template.Styles, &copied)
	}

	r.store.touch(template)

	return nil
}
