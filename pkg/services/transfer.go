package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// TransferFormatVersion tags exported documents so future format changes can
// keep reading old exports.
const TransferFormatVersion = 1

// TemplateDocument is the portable representation of a template and its
// graph, detached from ids of the exporting installation's scope.
type TemplateDocument struct {
	FormatVersion int                    `json:"format_version"`
	ExportedAt    time.Time              `json:"exported_at"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Icon          string                 `json:"icon,omitempty"`
	Color         string                 `json:"color,omitempty"`
	Kind          string                 `json:"kind,omitempty"`
	Nodes         []*models.Node         `json:"nodes"`
	Options       []*models.AnswerOption `json:"options,omitempty"`
	Links         []*models.NodeLink     `json:"links,omitempty"`
	Styles        []*models.NodeStyle    `json:"styles,omitempty"`
}

// templateDocumentSchema validates inbound documents before any of their ids
// are trusted. Structural checks only; referential integrity is re-checked
// in Go after the ids are re-minted.
var templateDocumentSchema = map[string]any{
	"type":     "object",
	"required": []any{"format_version", "name", "nodes"},
	"properties": map[string]any{
		"format_version": map[string]any{"type": "integer", "minimum": 1, "maximum": TransferFormatVersion},
		"name":           map[string]any{"type": "string", "minLength": 3},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "type", "title"},
				"properties": map[string]any{
					"id":    map[string]any{"type": "string", "minLength": 1},
					"type":  map[string]any{"enum": []any{"instruction", "question", "end", "panel", "reference"}},
					"title": map[string]any{"type": "string", "minLength": 1},
				},
			},
		},
		"options": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "source_node_id", "label"},
			},
		},
		"links": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "source_node_id", "target_template_id"},
			},
		},
	},
}

// Transfer exports templates as portable JSON documents and imports them
// back as fresh drafts.
type Transfer struct {
	persistence persistence.Persistence
	identity    identity.Resolver
	logger      *slog.Logger
}

// NewTransfer creates a new transfer service.
func NewTransfer(p persistence.Persistence, resolver identity.Resolver, logger *slog.Logger) *Transfer {
	return &Transfer{
		persistence: p,
		identity:    resolver,
		logger:      logger.With("service", "transfer"),
	}
}

// Export renders a template as a portable document. Lifecycle state, scope
// and approval stamps deliberately stay behind; only the authored content
// travels.
func (s *Transfer) Export(ctx context.Context, userID string, scope models.Scope, templateID string) (*TemplateDocument, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	template, err := s.persistence.TemplateRepository().GetByID(ctx, templateID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return &TemplateDocument{
		FormatVersion: TransferFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Name:          template.Name,
		Description:   template.Description,
		Icon:          template.Icon,
		Color:         template.Color,
		Kind:          template.Kind,
		Nodes:         template.Nodes,
		Options:       template.Options,
		Links:         template.Links,
		Styles:        template.Styles,
	}, nil
}

// Import validates a document and creates it as a fresh draft in the scope.
// All ids are re-minted. Link targets that do not resolve to an active
// template reachable from the destination scope are dropped rather than
// imported broken.
func (s *Transfer) Import(ctx context.Context, userID string, scope models.Scope, payload []byte) (*models.Template, error) {
	_, err := requireManager(ctx, s.identity, userID, scope)
	if err != nil {
		return nil, err
	}

	err = s.validateDocument(payload)
	if err != nil {
		return nil, err
	}

	var doc TemplateDocument

	err = json.Unmarshal(payload, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImportDocument, err)
	}

	known := make(map[string]bool, len(doc.Nodes))
	for _, node := range doc.Nodes {
		known[node.ID] = true
	}

	options := make([]*models.AnswerOption, 0, len(doc.Options))

	for _, option := range doc.Options {
		if !known[option.SourceNodeID] {
			return nil, fmt.Errorf("%w: option %s references unknown node %s",
				ErrInvalidImportDocument, option.ID, option.SourceNodeID)
		}

		// Targets outside the document dangle instead of failing the
		// import; that matches how node deletion treats them.
		if option.TargetNodeID != nil && !known[*option.TargetNodeID] {
			option.TargetNodeID = nil
		}

		options = append(options, option)
	}

	for _, link := range doc.Links {
		if !known[link.SourceNodeID] {
			return nil, fmt.Errorf("%w: link %s references unknown node %s",
				ErrInvalidImportDocument, link.ID, link.SourceNodeID)
		}
	}

	staging := &models.Template{
		ID:          "import",
		Name:        strings.TrimSpace(doc.Name),
		Description: doc.Description,
		Icon:        doc.Icon,
		Color:       doc.Color,
		Kind:        doc.Kind,
		Nodes:       doc.Nodes,
		Options:     options,
		Links:       s.resolvableLinks(ctx, scope, doc.Links),
		Styles:      doc.Styles,
	}

	template, err := cloneTemplate(staging, scope, userID)
	if err != nil {
		return nil, err
	}

	// An import is a fresh authored artifact, not a copy of a local
	// template; it carries no clone provenance.
	template.SourceTemplateID = ""

	err = s.persistence.TemplateRepository().Create(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to create imported template: %w", err)
	}

	s.logger.InfoContext(ctx, "template imported",
		"template_id", template.ID, "scope", scope.String(), "name", template.Name)

	return template, nil
}

func (s *Transfer) validateDocument(payload []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(templateDocumentSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidImportDocument, err)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidImportDocument, strings.Join(descriptions, "; "))
	}

	return nil
}

// resolvableLinks keeps only the links whose target template exists and is
// active when seen from the destination scope.
func (s *Transfer) resolvableLinks(ctx context.Context, scope models.Scope, links []*models.NodeLink) []*models.NodeLink {
	kept := make([]*models.NodeLink, 0, len(links))

	for _, link := range links {
		target, err := s.resolveTarget(ctx, scope, link.TargetTemplateID)
		if err != nil || !target.Active {
			s.logger.WarnContext(ctx, "dropping unresolvable link on import",
				"target_template_id", link.TargetTemplateID)

			continue
		}

		kept = append(kept, link)
	}

	return kept
}

func (s *Transfer) resolveTarget(ctx context.Context, scope models.Scope, targetID string) (*models.Template, error) {
	target, err := s.persistence.TemplateRepository().GetByID(ctx, targetID, scope)
	if err == nil {
		return target, nil
	}

	if scope.IsGlobal() || !persistence.IsTemplateNotFound(err) {
		return nil, err
	}

	return s.persistence.TemplateRepository().GetByID(ctx, targetID, models.Global)
}
