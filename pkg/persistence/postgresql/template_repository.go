package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const templateColumns = `
			id
		  , scope
		  , name
		  , description
		  , icon
		  , color
		  , kind
		  , active
		  , status
		  , review_note
		  , approved_by
		  , approved_at
		  , source_template_id
		  , version
		  , updated_by
		  , created_at
		  , updated_at
		  , deleted_at
`

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) List(ctx context.Context, scope models.Scope, activeOnly bool) ([]*models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE scope = $1 AND deleted_at IS NULL AND ($2 = false OR active = true)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, scope.String(), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	templates := make([]*models.Template, 0)

	for rows.Next() {
		template, err := r.scanTemplateBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		err = r.loadGraph(ctx, template)
		if err != nil {
			return nil, fmt.Errorf("failed to load template graph: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string, scope models.Scope) (*models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE id = $1 AND scope = $2 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id, scope.String())

	template, err := r.scanTemplateBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	err = r.loadGraph(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("failed to load template graph: %w", err)
	}

	return template, nil
}

// GetForRuntime resolves a template in the tenant's own scope first, then
// falls back to the shared global set.
func (r *TemplateRepository) GetForRuntime(ctx context.Context, id, tenantID string) (*models.Template, error) {
	template, err := r.GetByID(ctx, id, models.ForTenant(tenantID))
	if err == nil {
		return template, nil
	}

	if !persistence.IsTemplateNotFound(err) {
		return nil, err
	}

	template, err = r.GetByID(ctx, id, models.Global)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return nil, persistence.NewTemplateError("GetForRuntime", id, persistence.ErrTemplateNotFound)
		}

		return nil, err
	}

	return template, nil
}

// Create persists the template and its whole graph in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	now := time.Now().UTC()

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.Version == 0 {
		template.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	templateQuery := `
		INSERT INTO templates (id, scope, name, description, icon, color, kind, active, status,
review_note, approved_by, approved_at, source_template_id, version, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = tx.ExecContext(ctx, templateQuery,
		template.ID,
		template.Scope.String(),
		template.Name,
		template.Description,
		template.Icon,
		template.Color,
		template.Kind,
		template.Active,
		template.Status,
		template.ReviewNote,
		template.ApprovedBy,
		template.ApprovedAt,
		nullableID(template.SourceTemplateID),
		template.Version,
		template.UpdatedBy,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewTemplateError("Create", template.ID, persistence.ErrDuplicateTemplateName)
		}

		return fmt.Errorf("failed to save template: %w", err)
	}

	err = saveGraph(ctx, tx, template)
	if err != nil {
		return fmt.Errorf("failed to save template graph: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *TemplateRepository) UpdateMeta(ctx context.Context, template *models.Template, expectedVersion int64) error {
	query := `
		UPDATE templates SET
			name = $1,
			description = $2,
			icon = $3,
			color = $4,
			kind = $5,
			active = $6,
			updated_by = $7,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $8 AND scope = $9 AND version = $10 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		template.Name,
		template.Description,
		template.Icon,
		template.Color,
		template.Kind,
		template.Active,
		template.UpdatedBy,
		template.ID,
		template.Scope.String(),
		expectedVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewTemplateError("UpdateMeta", template.ID, persistence.ErrDuplicateTemplateName)
		}

		return fmt.Errorf("failed to update template: %w", err)
	}

	err = r.checkWrite(ctx, result, "UpdateMeta", template.ID, template.Scope)
	if err != nil {
		return err
	}

	template.Version = expectedVersion + 1

	return nil
}

func (r *TemplateRepository) UpdateStatus(ctx context.Context, template *models.Template, expectedVersion int64) error {
	query := `
		UPDATE templates SET
			status = $1,
			review_note = $2,
			approved_by = $3,
			approved_at = $4,
			updated_by = $5,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $6 AND scope = $7 AND version = $8 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		template.Status,
		template.ReviewNote,
		template.ApprovedBy,
		template.ApprovedAt,
		template.UpdatedBy,
		template.ID,
		template.Scope.String(),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update template status: %w", err)
	}

	err = r.checkWrite(ctx, result, "UpdateStatus", template.ID, template.Scope)
	if err != nil {
		return err
	}

	template.Version = expectedVersion + 1

	return nil
}

// Delete soft deletes a template by setting the deleted_at timestamp.
func (r *TemplateRepository) Delete(ctx context.Context, id string, scope models.Scope, expectedVersion int64) error {
	query := `
		UPDATE templates SET deleted_at = NOW(), version = version + 1
		WHERE id = $1 AND scope = $2 AND version = $3 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, scope.String(), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return r.checkWrite(ctx, result, "Delete", id, scope)
}

// checkWrite distinguishes a stale version stamp from a missing row when a
// guarded UPDATE touched nothing.
func (r *TemplateRepository) checkWrite(ctx context.Context, result sql.Result, op, id string, scope models.Scope) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1 AND scope = $2 AND deleted_at IS NULL)",
		id, scope.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template existence: %w", err)
	}

	if !exists {
		return persistence.NewTemplateError(op, id, persistence.ErrTemplateNotFound)
	}

	return persistence.NewTemplateError(op, id, persistence.ErrVersionConflict)
}

func (r *TemplateRepository) scanTemplateBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Template, error) {
	var (
		template         models.Template
		scope            string
		approvedAt       sql.NullTime
		sourceTemplateID sql.NullString
		deletedAt        sql.NullTime
	)

	err := scanner.Scan(
		&template.ID,
		&scope,
		&template.Name,
		&template.Description,
		&template.Icon,
		&template.Color,
		&template.Kind,
		&template.Active,
		&template.Status,
		&template.ReviewNote,
		&template.ApprovedBy,
		&approvedAt,
		&sourceTemplateID,
		&template.Version,
		&template.UpdatedBy,
		&template.CreatedAt,
		&template.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	template.Scope = models.ParseScope(scope)

	if approvedAt.Valid {
		at := approvedAt.Time
		template.ApprovedAt = &at
	}

	if sourceTemplateID.Valid {
		template.SourceTemplateID = sourceTemplateID.String
	}

	if deletedAt.Valid {
		at := deletedAt.Time
		template.DeletedAt = &at
	}

	return &template, nil
}

func (r *TemplateRepository) loadGraph(ctx context.Context, template *models.Template) error {
	err := r.loadNodes(ctx, template)
	if err != nil {
		return err
	}

	err = r.loadOptions(ctx, template)
	if err != nil {
		return err
	}

	err = r.loadLinks(ctx, template)
	if err != nil {
		return err
	}

	return r.loadStyles(ctx, template)
}

func (r *TemplateRepository) loadNodes(ctx context.Context, template *models.Template) error {
	query := `
		SELECT id, node_type, title, body, sort_order, position_x, position_y, entry, style
		FROM template_nodes
		WHERE template_id = $1
		ORDER BY sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query template nodes: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node      models.Node
			styleJSON []byte
		)

		err := rows.Scan(
			&node.ID,
			&node.Type,
			&node.Title,
			&node.Body,
			&node.SortOrder,
			&node.PositionX,
			&node.PositionY,
			&node.Entry,
			&styleJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		node.TemplateID = template.ID

		if styleJSON != nil {
			err := json.Unmarshal(styleJSON, &node.Style)
			if err != nil {
				return fmt.Errorf("failed to unmarshal node style: %w", err)
			}
		}

		nodes = append(nodes, &node)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	template.Nodes = nodes

	return nil
}

func (r *TemplateRepository) loadOptions(ctx context.Context, template *models.Template) error {
	query := `
		SELECT id, source_node_id, label, target_node_id, action_key, source_handle, target_handle, sort_order
		FROM answer_options
		WHERE template_id = $1
		ORDER BY source_node_id, sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query answer options: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	options := make([]*models.AnswerOption, 0)

	for rows.Next() {
		var (
			option models.AnswerOption
			target sql.NullString
		)

		err := rows.Scan(
			&option.ID,
			&option.SourceNodeID,
			&option.Label,
			&target,
			&option.ActionKey,
			&option.SourceHandle,
			&option.TargetHandle,
			&option.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("failed to scan answer option: %w", err)
		}

		option.TemplateID = template.ID

		if target.Valid {
			value := target.String
			option.TargetNodeID = &value
		}

		options = append(options, &option)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating answer options: %w", err)
	}

	template.Options = options

	return nil
}

func (r *TemplateRepository) loadLinks(ctx context.Context, template *models.Template) error {
	query := `
		SELECT id, source_node_id, target_template_id, sort_order
		FROM node_links
		WHERE template_id = $1
		ORDER BY source_node_id, sort_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query node links: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	links := make([]*models.NodeLink, 0)

	for rows.Next() {
		var link models.NodeLink

		err := rows.Scan(&link.ID, &link.SourceNodeID, &link.TargetTemplateID, &link.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to scan node link: %w", err)
		}

		link.TemplateID = template.ID
		links = append(links, &link)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating node links: %w", err)
	}

	template.Links = links

	return nil
}

func (r *TemplateRepository) loadStyles(ctx context.Context, template *models.Template) error {
	query := `
		SELECT node_type, background, text_color, border
		FROM node_styles
		WHERE template_id = $1
		ORDER BY node_type
	`

	rows, err := r.db.QueryContext(ctx, query, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query node styles: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	styles := make([]*models.NodeStyle, 0)

	for rows.Next() {
		var style models.NodeStyle

		err := rows.Scan(&style.NodeType, &style.Background, &style.Text, &style.Border)
		if err != nil {
			return fmt.Errorf("failed to scan node style: %w", err)
		}

		style.TemplateID = template.ID
		styles = append(styles, &style)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating node styles: %w", err)
	}

	template.Styles = styles

	return nil
}

// saveGraph inserts the template's nodes, options, links and styles inside
// the caller's transaction. Used by Create, which writes whole graphs.
func saveGraph(ctx context.Context, tx *sql.Tx, template *models.Template) error {
	for _, node := range template.Nodes {
		err := insertNode(ctx, tx, template.ID, node)
		if err != nil {
			return err
		}
	}

	for _, option := range template.Options {
		err := insertOption(ctx, tx, template.ID, option)
		if err != nil {
			return err
		}
	}

	for _, link := range template.Links {
		err := insertLink(ctx, tx, template.ID, link)
		if err != nil {
			return err
		}
	}

	for _, style := range template.Styles {
		err := upsertStyle(ctx, tx, template.ID, style)
		if err != nil {
			return err
		}
	}

	return nil
}

func nullableID(id string) any {
	if id == "" {
		return nil
	}

	return id
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
