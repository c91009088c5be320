package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/events"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
)

// New nodes are dropped onto the diagram in a diagonal stagger so they never
// stack exactly on top of each other.
const (
	diagramBaseX   = 80
	diagramBaseY   = 80
	diagramStagger = 48
)

// Graph applies structural edits to a template's node graph. Every mutation
// requires an editable template and the caller's expected version stamp.
type Graph struct {
	persistence persistence.Persistence
	identity    identity.Resolver
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewGraph creates a new graph mutation service.
func NewGraph(p persistence.Persistence, resolver identity.Resolver, bus eventbus.EventPublisher, logger *slog.Logger) *Graph {
	return &Graph{
		persistence: p,
		identity:    resolver,
		bus:         bus,
		logger:      logger.With("service", "graph"),
	}
}

// editable loads the template and rejects mutation when review froze it.
func (s *Graph) editable(ctx context.Context, userID string, scope models.Scope, templateID string) (*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if !template.Status.Editable() {
		return nil, fmt.Errorf("%w: status %s", ErrTemplateNotEditable, template.Status)
	}

	return template, nil
}

func (s *Graph) publishChanged(ctx context.Context, template *models.Template, userID, change string, version int64) {
	event := events.TemplateChanged{
		BaseEvent: events.NewBaseEvent(events.TemplateChangedEvent, template.ID),
		Version:   version,
		ChangedBy: userID,
		Change:    change,
	}
	event.Scope = template.Scope.String()
	publish(ctx, s.bus, s.logger, template.ID, event)
}

// CreateNodeRequest carries the authored fields of a new node.
type CreateNodeRequest struct {
	Type  models.NodeType `validate:"required"`
	Title string          `validate:"required"`
	Body  string
	Entry bool
	Style *models.StyleOverride
}

// CreateNode appends a node at the next sort order with a staggered default
// diagram position. A nil style inherits the template's per-type default.
func (s *Graph) CreateNode(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, req CreateNodeRequest) (*models.Node, error) {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNodeType, req.Type)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	node := &models.Node{
		Type:      req.Type,
		Title:     title,
		Body:      req.Body,
		SortOrder: template.MaxSortOrder() + 1,
		PositionX: diagramBaseX + diagramStagger*len(template.Nodes),
		PositionY: diagramBaseY + diagramStagger*len(template.Nodes),
		Entry:     req.Entry,
		Style:     req.Style,
	}

	err = s.persistence.GraphRepository().CreateNode(ctx, templateID, scope, expectedVersion, node)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	s.publishChanged(ctx, template, userID, "node.created", expectedVersion+1)

	return node, nil
}

// UpdateNodeRequest carries a partial node update; nil fields are left
// unchanged. ClearStyle drops the override so the node inherits again.
type UpdateNodeRequest struct {
	Type       *models.NodeType
	Title      *string
	Body       *string
	Entry      *bool
	Style      *models.StyleOverride
	ClearStyle bool
}

// UpdateNode mutates a node in place. Changing the type away from question
// deliberately leaves authored options untouched; they become inert data
// until the type changes back.
func (s *Graph) UpdateNode(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, nodeID string, req UpdateNodeRequest) (*models.Node, error) {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	node := template.NodeByID(nodeID)
	if node == nil {
		return nil, persistence.NewGraphError("UpdateNode", templateID, nodeID, persistence.ErrNodeNotFound)
	}

	if req.Type != nil {
		if !req.Type.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidNodeType, *req.Type)
		}

		node.Type = *req.Type
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}

		node.Title = title
	}

	if req.Body != nil {
		node.Body = *req.Body
	}

	if req.Entry != nil {
		node.Entry = *req.Entry
	}

	if req.ClearStyle {
		node.Style = nil
	} else if req.Style != nil {
		node.Style = req.Style
	}

	err = s.persistence.GraphRepository().UpdateNode(ctx, templateID, scope, expectedVersion, node)
	if err != nil {
		return nil, fmt.Errorf("failed to update node: %w", err)
	}

	s.publishChanged(ctx, template, userID, "node.updated", expectedVersion+1)

	return node, nil
}

// DeleteNode removes a node with its outgoing options and links. Options in
// the rest of the graph that targeted it keep their labels and dangle.
func (s *Graph) DeleteNode(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, nodeID string) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	err = s.persistence.GraphRepository().DeleteNode(ctx, templateID, scope, expectedVersion, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	s.publishChanged(ctx, template, userID, "node.deleted", expectedVersion+1)

	return nil
}

// OptionRequest carries the authored fields of an answer option. A nil
// target authors a dangling option on purpose.
type OptionRequest struct {
	SourceNodeID string `validate:"required"`
	Label        string `validate:"required"`
	TargetNodeID *string
	ActionKey    string
	SourceHandle string
	TargetHandle string
}

func (s *Graph) validateOption(template *models.Template, label string, targetNodeID *string) error {
	if label == "" {
		return ErrLabelRequired
	}

	if targetNodeID != nil && *targetNodeID != "" && template.NodeByID(*targetNodeID) == nil {
		return fmt.Errorf("%w: %s", ErrTargetOutsideTemplate, *targetNodeID)
	}

	return nil
}

// CreateOption adds an answer option to a branching node. Duplicate labels
// are allowed; receptionists tell options apart by position.
func (s *Graph) CreateOption(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, req OptionRequest) (*models.AnswerOption, error) {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	source := template.NodeByID(req.SourceNodeID)
	if source == nil {
		return nil, persistence.NewGraphError("CreateOption", templateID, req.SourceNodeID, persistence.ErrNodeNotFound)
	}

	if !source.Type.SupportsBranching() {
		return nil, fmt.Errorf("%w: %s", ErrBranchingUnsupported, source.Type)
	}

	label := strings.TrimSpace(req.Label)

	err = s.validateOption(template, label, req.TargetNodeID)
	if err != nil {
		return nil, err
	}

	option := &models.AnswerOption{
		SourceNodeID: req.SourceNodeID,
		Label:        label,
		TargetNodeID: req.TargetNodeID,
		ActionKey:    req.ActionKey,
		SourceHandle: req.SourceHandle,
		TargetHandle: req.TargetHandle,
		SortOrder:    len(template.OptionsFrom(req.SourceNodeID)),
	}

	err = s.persistence.GraphRepository().CreateOption(ctx, templateID, scope, expectedVersion, option)
	if err != nil {
		return nil, fmt.Errorf("failed to create option: %w", err)
	}

	s.publishChanged(ctx, template, userID, "option.created", expectedVersion+1)

	return option, nil
}

// UpdateOptionRequest carries a partial option update. ClearTarget dangles
// the option; Target retargets it within the template.
type UpdateOptionRequest struct {
	Label        *string
	TargetNodeID *string
	ClearTarget  bool
	ActionKey    *string
	SourceHandle *string
	TargetHandle *string
	SortOrder    *int
}

// UpdateOption mutates an existing option. The source node is fixed; moving
// an option to another node is a delete and re-create.
func (s *Graph) UpdateOption(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, optionID string, req UpdateOptionRequest) (*models.AnswerOption, error) {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	option := template.OptionByID(optionID)
	if option == nil {
		return nil, persistence.NewGraphError("UpdateOption", templateID, optionID, persistence.ErrOptionNotFound)
	}

	if req.Label != nil {
		option.Label = strings.TrimSpace(*req.Label)
	}

	if req.ClearTarget {
		option.TargetNodeID = nil
	} else if req.TargetNodeID != nil {
		option.TargetNodeID = req.TargetNodeID
	}

	err = s.validateOption(template, option.Label, option.TargetNodeID)
	if err != nil {
		return nil, err
	}

	if req.ActionKey != nil {
		option.ActionKey = *req.ActionKey
	}

	if req.SourceHandle != nil {
		option.SourceHandle = *req.SourceHandle
	}

	if req.TargetHandle != nil {
		option.TargetHandle = *req.TargetHandle
	}

	if req.SortOrder != nil {
		option.SortOrder = *req.SortOrder
	}

	err = s.persistence.GraphRepository().UpdateOption(ctx, templateID, scope, expectedVersion, option)
	if err != nil {
		return nil, fmt.Errorf("failed to update option: %w", err)
	}

	s.publishChanged(ctx, template, userID, "option.updated", expectedVersion+1)

	return option, nil
}

// DeleteOption removes an answer option.
func (s *Graph) DeleteOption(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, optionID string) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	err = s.persistence.GraphRepository().DeleteOption(ctx, templateID, scope, expectedVersion, optionID)
	if err != nil {
		return fmt.Errorf("failed to delete option: %w", err)
	}

	s.publishChanged(ctx, template, userID, "option.deleted", expectedVersion+1)

	return nil
}

// CreateLinkRequest carries the fields of a cross-template jump.
type CreateLinkRequest struct {
	SourceNodeID     string `validate:"required"`
	TargetTemplateID string `validate:"required"`
}

// CreateLink adds a jump from a node into another template. The target is
// resolved the way the runtime will resolve it, so authors cannot link to a
// template their tenants would never reach.
func (s *Graph) CreateLink(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, req CreateLinkRequest) (*models.NodeLink, error) {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return nil, err
	}

	if template.NodeByID(req.SourceNodeID) == nil {
		return nil, persistence.NewGraphError("CreateLink", templateID, req.SourceNodeID, persistence.ErrNodeNotFound)
	}

	if req.TargetTemplateID == templateID {
		return nil, ErrSelfLink
	}

	target, err := s.resolveLinkTarget(ctx, scope, req.TargetTemplateID)
	if err != nil {
		return nil, err
	}

	if !target.Active {
		return nil, fmt.Errorf("%w: target template %s is inactive", ErrTemplateNotRunnable, target.ID)
	}

	link := &models.NodeLink{
		SourceNodeID:     req.SourceNodeID,
		TargetTemplateID: target.ID,
		SortOrder:        len(template.LinksFrom(req.SourceNodeID)),
	}

	err = s.persistence.GraphRepository().CreateLink(ctx, templateID, scope, expectedVersion, link)
	if err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	s.publishChanged(ctx, template, userID, "link.created", expectedVersion+1)

	return link, nil
}

// resolveLinkTarget finds the link target the way the runtime would: the
// authoring scope first, then the shared global set for tenant templates.
func (s *Graph) resolveLinkTarget(ctx context.Context, scope models.Scope, targetID string) (*models.Template, error) {
	target, err := s.persistence.TemplateRepository().GetByID(ctx, targetID, scope)
	if err == nil {
		return target, nil
	}

	if scope.IsGlobal() || !persistence.IsTemplateNotFound(err) {
		return nil, fmt.Errorf("failed to resolve link target: %w", err)
	}

	target, err = s.persistence.TemplateRepository().GetByID(ctx, targetID, models.Global)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve link target: %w", err)
	}

	return target, nil
}

// DeleteLink removes a cross-template jump.
func (s *Graph) DeleteLink(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, linkID string) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	err = s.persistence.GraphRepository().DeleteLink(ctx, templateID, scope, expectedVersion, linkID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	s.publishChanged(ctx, template, userID, "link.deleted", expectedVersion+1)

	return nil
}

// RepositionNodes applies a bulk diagram layout. The batch is atomic: one
// foreign node id and nothing moves.
func (s *Graph) RepositionNodes(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, positions []persistence.NodePosition) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	if len(positions) == 0 {
		return ErrEmptyPositions
	}

	err = s.persistence.GraphRepository().RepositionNodes(ctx, templateID, scope, expectedVersion, positions)
	if err != nil {
		return fmt.Errorf("failed to reposition nodes: %w", err)
	}

	s.publishChanged(ctx, template, userID, "nodes.repositioned", expectedVersion+1)

	return nil
}

// StyleRequest carries a per-type default style.
type StyleRequest struct {
	NodeType   models.NodeType `validate:"required"`
	Background string
	Text       string
	Border     string
}

// UpsertStyle sets the template's default colours for one node type.
func (s *Graph) UpsertStyle(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, req StyleRequest) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	if !req.NodeType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidNodeType, req.NodeType)
	}

	style := &models.NodeStyle{
		TemplateID: templateID,
		NodeType:   req.NodeType,
		Background: req.Background,
		Text:       req.Text,
		Border:     req.Border,
	}

	err = s.persistence.GraphRepository().UpsertStyle(ctx, templateID, scope, expectedVersion, style)
	if err != nil {
		return fmt.Errorf("failed to upsert style: %w", err)
	}

	s.publishChanged(ctx, template, userID, "style.upserted", expectedVersion+1)

	return nil
}

// DeleteStyle removes the default colours for one node type.
func (s *Graph) DeleteStyle(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, nodeType models.NodeType) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	err = s.persistence.GraphRepository().DeleteStyle(ctx, templateID, scope, expectedVersion, nodeType)
	if err != nil {
		return fmt.Errorf("failed to delete style: %w", err)
	}

	s.publishChanged(ctx, template, userID, "style.deleted", expectedVersion+1)

	return nil
}

// CopyStyles imports another template's per-type defaults. With overwrite
// the source wins on every type; without, only missing types are filled.
func (s *Graph) CopyStyles(ctx context.Context, userID string, scope models.Scope, templateID string, expectedVersion int64, sourceTemplateID string, overwrite bool) error {
	template, err := s.editable(ctx, userID, scope, templateID)
	if err != nil {
		return err
	}

	_, err = s.resolveLinkTarget(ctx, scope, sourceTemplateID)
	if err != nil {
		return err
	}

	err = s.persistence.GraphRepository().CopyStyles(ctx, templateID, scope, expectedVersion, sourceTemplateID, overwrite)
	if err != nil {
		return fmt.Errorf("failed to copy styles: %w", err)
	}

	s.publishChanged(ctx, template, userID, "styles.copied", expectedVersion+1)

	return nil
}
