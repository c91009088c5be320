package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/google/uuid"
)

// GraphRepository handles structural edits to template graphs. Every
// mutation runs in one transaction that compare-and-swaps the owning
// template's version stamp.
type GraphRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraphRepository creates a new graph repository.
func NewGraphRepository(db *sql.DB, logger *slog.Logger) *GraphRepository {
	return &GraphRepository{db: db, logger: logger}
}

// inTx runs fn inside a transaction that has already passed the template
// version compare-and-swap. The version bump and the structural edit
// commit or roll back together.
func (r *GraphRepository) inTx(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = bumpTemplateVersion(ctx, tx, templateID, scope, expectedVersion)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// bumpTemplateVersion performs the optimistic-concurrency check: the guarded
// UPDATE succeeds only when the stored version matches the caller's stamp.
func bumpTemplateVersion(ctx context.Context, tx *sql.Tx, templateID string, scope models.Scope, expectedVersion int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE templates SET version = version + 1, updated_at = NOW()
		WHERE id = $1 AND scope = $2 AND version = $3 AND deleted_at IS NULL
	`, templateID, scope.String(), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to bump template version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1 AND scope = $2 AND deleted_at IS NULL)",
		templateID, scope.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template existence: %w", err)
	}

	if !exists {
		return persistence.NewTemplateError("bumpTemplateVersion", templateID, persistence.ErrTemplateNotFound)
	}

	return persistence.NewTemplateError("bumpTemplateVersion", templateID, persistence.ErrVersionConflict)
}

func (r *GraphRepository) CreateNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error {
	if node.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}

		node.ID = id.String()
	}

	node.TemplateID = templateID

	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		return insertNode(ctx, tx, templateID, node)
	})
}

func (r *GraphRepository) UpdateNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, node *models.Node) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		styleJSON, err := marshalStyle(node.Style)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE template_nodes SET
				node_type = $1,
				title = $2,
				body = $3,
				sort_order = $4,
				position_x = $5,
				position_y = $6,
				entry = $7,
				style = $8,
				updated_at = NOW()
			WHERE id = $9 AND template_id = $10
		`,
			node.Type,
			node.Title,
			node.Body,
			node.SortOrder,
			node.PositionX,
			node.PositionY,
			node.Entry,
			styleJSON,
			node.ID,
			templateID,
		)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("UpdateNode", templateID, node.ID, persistence.ErrNodeNotFound))
	})
}

func (r *GraphRepository) DeleteNode(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeID string) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		// Inbound options elsewhere in the template dangle instead of
		// being deleted, preserving their authored labels.
		_, err := tx.ExecContext(ctx, `
			UPDATE answer_options SET target_node_id = NULL
			WHERE template_id = $1 AND target_node_id = $2 AND source_node_id <> $2
		`, templateID, nodeID)
		if err != nil {
			return fmt.Errorf("failed to dangle inbound options: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"DELETE FROM answer_options WHERE template_id = $1 AND source_node_id = $2",
			templateID, nodeID)
		if err != nil {
			return fmt.Errorf("failed to delete outgoing options: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"DELETE FROM node_links WHERE template_id = $1 AND source_node_id = $2",
			templateID, nodeID)
		if err != nil {
			return fmt.Errorf("failed to delete outgoing links: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			"DELETE FROM template_nodes WHERE id = $1 AND template_id = $2",
			nodeID, templateID)
		if err != nil {
			return fmt.Errorf("failed to delete node: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("DeleteNode", templateID, nodeID, persistence.ErrNodeNotFound))
	})
}

func (r *GraphRepository) CreateOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error {
	if option.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate option ID: %w", err)
		}

		option.ID = id.String()
	}

	option.TemplateID = templateID

	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		return insertOption(ctx, tx, templateID, option)
	})
}

func (r *GraphRepository) UpdateOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, option *models.AnswerOption) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE answer_options SET
				label = $1,
				target_node_id = $2,
				action_key = $3,
				source_handle = $4,
				target_handle = $5,
				sort_order = $6
			WHERE id = $7 AND template_id = $8
		`,
			option.Label,
			option.TargetNodeID,
			option.ActionKey,
			option.SourceHandle,
			option.TargetHandle,
			option.SortOrder,
			option.ID,
			templateID,
		)
		if err != nil {
			return fmt.Errorf("failed to update option: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("UpdateOption", templateID, option.ID, persistence.ErrOptionNotFound))
	})
}

func (r *GraphRepository) DeleteOption(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, optionID string) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM answer_options WHERE id = $1 AND template_id = $2",
			optionID, templateID)
		if err != nil {
			return fmt.Errorf("failed to delete option: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("DeleteOption", templateID, optionID, persistence.ErrOptionNotFound))
	})
}

func (r *GraphRepository) CreateLink(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, link *models.NodeLink) error {
	if link.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate link ID: %w", err)
		}

		link.ID = id.String()
	}

	link.TemplateID = templateID

	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		return insertLink(ctx, tx, templateID, link)
	})
}

func (r *GraphRepository) DeleteLink(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, linkID string) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM node_links WHERE id = $1 AND template_id = $2",
			linkID, templateID)
		if err != nil {
			return fmt.Errorf("failed to delete link: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("DeleteLink", templateID, linkID, persistence.ErrLinkNotFound))
	})
}

// RepositionNodes applies the whole batch inside one transaction. Any node
// id outside the template rolls everything back.
func (r *GraphRepository) RepositionNodes(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, positions []persistence.NodePosition) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		for _, position := range positions {
			result, err := tx.ExecContext(ctx, `
				UPDATE template_nodes SET position_x = $1, position_y = $2, updated_at = NOW()
				WHERE id = $3 AND template_id = $4
			`, position.X, position.Y, position.NodeID, templateID)
			if err != nil {
				return fmt.Errorf("failed to reposition node: %w", err)
			}

			err = requireRow(result, persistence.NewGraphError("RepositionNodes", templateID, position.NodeID, persistence.ErrForeignNode))
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *GraphRepository) UpsertStyle(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, style *models.NodeStyle) error {
	style.TemplateID = templateID

	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		return upsertStyle(ctx, tx, templateID, style)
	})
}

func (r *GraphRepository) DeleteStyle(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, nodeType models.NodeType) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"DELETE FROM node_styles WHERE template_id = $1 AND node_type = $2",
			templateID, nodeType)
		if err != nil {
			return fmt.Errorf("failed to delete style: %w", err)
		}

		return requireRow(result, persistence.NewGraphError("DeleteStyle", templateID, string(nodeType), persistence.ErrStyleNotFound))
	})
}

func (r *GraphRepository) CopyStyles(ctx context.Context, templateID string, scope models.Scope, expectedVersion int64, sourceTemplateID string, overwrite bool) error {
	return r.inTx(ctx, templateID, scope, expectedVersion, func(tx *sql.Tx) error {
		var exists bool

		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM templates WHERE id = $1 AND deleted_at IS NULL)",
			sourceTemplateID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check source template: %w", err)
		}

		if !exists {
			return persistence.NewGraphError("CopyStyles", templateID, sourceTemplateID, persistence.ErrTemplateNotFound)
		}

		query := `
			INSERT INTO node_styles (template_id, node_type, background, text_color, border)
			SELECT $1, node_type, background, text_color, border
			FROM node_styles
			WHERE template_id = $2
			ON CONFLICT (template_id, node_type) DO NOTHING
		`

		if overwrite {
			query = `
				INSERT INTO node_styles (template_id, node_type, background, text_color, border)
				SELECT $1, node_type, background, text_color, border
				FROM node_styles
				WHERE template_id = $2
				ON CONFLICT (template_id, node_type) DO UPDATE SET
					background = EXCLUDED.background,
					text_color = EXCLUDED.text_color,
					border = EXCLUDED.border
			`
		}

		_, err = tx.ExecContext(ctx, query, templateID, sourceTemplateID)
		if err != nil {
			return fmt.Errorf("failed to copy styles: %w", err)
		}

		return nil
	})
}

func insertNode(ctx context.Context, tx *sql.Tx, templateID string, node *models.Node) error {
	styleJSON, err := marshalStyle(node.Style)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO template_nodes (id, template_id, node_type, title, body, sort_order, position_x, position_y, entry, style)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.ExecContext(ctx, query,
		node.ID,
		templateID,
		node.Type,
		node.Title,
		node.Body,
		node.SortOrder,
		node.PositionX,
		node.PositionY,
		node.Entry,
		styleJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save node: %w", err)
	}

	return nil
}

func insertOption(ctx context.Context, tx *sql.Tx, templateID string, option *models.AnswerOption) error {
	query := `
		INSERT INTO answer_options (id, template_id, source_node_id, label, target_node_id, action_key, source_handle, target_handle, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.ExecContext(ctx, query,
		option.ID,
		templateID,
		option.SourceNodeID,
		option.Label,
		option.TargetNodeID,
		option.ActionKey,
		option.SourceHandle,
		option.TargetHandle,
		option.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("failed to save option: %w", err)
	}

	return nil
}

func insertLink(ctx context.Context, tx *sql.Tx, templateID string, link *models.NodeLink) error {
	query := `
		INSERT INTO node_links (id, template_id, source_node_id, target_template_id, sort_order)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.ExecContext(ctx, query,
		link.ID,
		templateID,
		link.SourceNodeID,
		link.TargetTemplateID,
		link.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("failed to save link: %w", err)
	}

	return nil
}

func upsertStyle(ctx context.Context, tx *sql.Tx, templateID string, style *models.NodeStyle) error {
	query := `
		INSERT INTO node_styles (template_id, node_type, background, text_color, border)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (template_id, node_type) DO UPDATE SET
			background = EXCLUDED.background,
			text_color = EXCLUDED.text_color,
			border = EXCLUDED.border
	`

	_, err := tx.ExecContext(ctx, query,
		templateID,
		style.NodeType,
		style.Background,
		style.Text,
		style.Border,
	)
	if err != nil {
		return fmt.Errorf("failed to save style: %w", err)
	}

	return nil
}

func marshalStyle(style *models.StyleOverride) ([]byte, error) {
	if style == nil {
		return nil, nil
	}

	data, err := json.Marshal(style)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node style: %w", err)
	}

	return data, nil
}

func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFound
	}

	return nil
}
