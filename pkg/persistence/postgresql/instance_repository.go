package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clinicdesk/pathway/pkg/models"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/google/uuid"
)

// InstanceRepository handles instance-run database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.Instance) error {
	now := time.Now().UTC()

	if instance.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate instance ID: %w", err)
		}

		instance.ID = id.String()
	}

	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	if instance.Version == 0 {
		instance.Version = 1
	}

	query := `
		INSERT INTO instances (id, template_id, tenant_id, reference, category, current_node_id, status, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		instance.ID,
		instance.TemplateID,
		instance.TenantID,
		instance.Reference,
		instance.Category,
		instance.CurrentNodeID,
		instance.Status,
		instance.Version,
		instance.CreatedBy,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id, tenantID string) (*models.Instance, error) {
	query := `
		SELECT id, template_id, tenant_id, reference, category, current_node_id, status, version, created_by, created_at, updated_at, completed_at
		FROM instances
		WHERE id = $1 AND tenant_id = $2
	`

	row := r.db.QueryRowContext(ctx, query, id, tenantID)

	instance, err := r.scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	err = r.loadHistory(ctx, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance history: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) List(ctx context.Context, tenantID string, opts persistence.ListInstancesOptions) ([]*models.Instance, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, template_id, tenant_id, reference, category, current_node_id, status, version, created_by, created_at, updated_at, completed_at
		FROM instances
		WHERE tenant_id = $1 AND ($2::VARCHAR IS NULL OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`

	var status any
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	rows, err := r.db.QueryContext(ctx, query, tenantID, status, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	instances := make([]*models.Instance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		err = r.loadHistory(ctx, instance)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance history: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return instances, nil
}

// ApplyStep writes the instance's new position and appends one history row
// in a single transaction, guarded by the version compare-and-swap.
func (r *InstanceRepository) ApplyStep(ctx context.Context, instance *models.Instance, expectedVersion int64, step *models.HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	var completedAt any
	if instance.Status == models.InstanceStatusCompleted {
		completedAt = now
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE instances SET
			template_id = $1,
			current_node_id = $2,
			status = $3,
			version = version + 1,
			updated_at = $4,
			completed_at = COALESCE(completed_at, $5)
		WHERE id = $6 AND tenant_id = $7 AND version = $8
	`,
		instance.TemplateID,
		instance.CurrentNodeID,
		instance.Status,
		now,
		completedAt,
		instance.ID,
		instance.TenantID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	err = r.checkWrite(ctx, tx, result, "ApplyStep", instance.ID, instance.TenantID)
	if err != nil {
		return err
	}

	if step.RecordedAt.IsZero() {
		step.RecordedAt = now
	}

	// Seq is derived inside the transaction so history stays gapless even
	// under concurrent advances.
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM instance_history WHERE instance_id = $1",
		instance.ID,
	).Scan(&step.Seq)
	if err != nil {
		return fmt.Errorf("failed to compute history seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO instance_history (instance_id, seq, from_node_id, choice_kind, choice_id, to_node_id, to_template_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		instance.ID,
		step.Seq,
		step.FromNodeID,
		step.ChoiceKind,
		step.ChoiceID,
		step.ToNodeID,
		nullableID(step.ToTemplateID),
		step.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	instance.Version = expectedVersion + 1
	instance.UpdatedAt = now
	instance.History = append(instance.History, *step)

	return nil
}

func (r *InstanceRepository) UpdateStatus(ctx context.Context, instance *models.Instance, expectedVersion int64) error {
	now := time.Now().UTC()

	var completedAt any
	if instance.Status == models.InstanceStatusCompleted {
		completedAt = now
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE instances SET
			status = $1,
			version = version + 1,
			updated_at = $2,
			completed_at = COALESCE(completed_at, $3)
		WHERE id = $4 AND tenant_id = $5 AND version = $6
	`,
		instance.Status,
		now,
		completedAt,
		instance.ID,
		instance.TenantID,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}

	err = r.checkWriteDB(ctx, result, "UpdateStatus", instance.ID, instance.TenantID)
	if err != nil {
		return err
	}

	instance.Version = expectedVersion + 1
	instance.UpdatedAt = now

	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *InstanceRepository) checkWrite(ctx context.Context, q rowQuerier, result sql.Result, op, id, tenantID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = q.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM instances WHERE id = $1 AND tenant_id = $2)",
		id, tenantID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check instance existence: %w", err)
	}

	if !exists {
		return persistence.NewInstanceError(op, id, persistence.ErrInstanceNotFound)
	}

	return persistence.NewInstanceError(op, id, persistence.ErrVersionConflict)
}

func (r *InstanceRepository) checkWriteDB(ctx context.Context, result sql.Result, op, id, tenantID string) error {
	return r.checkWrite(ctx, r.db, result, op, id, tenantID)
}

func (r *InstanceRepository) scanInstance(scanner interface {
	Scan(dest ...any) error
}) (*models.Instance, error) {
	var (
		instance    models.Instance
		completedAt sql.NullTime
	)

	err := scanner.Scan(
		&instance.ID,
		&instance.TemplateID,
		&instance.TenantID,
		&instance.Reference,
		&instance.Category,
		&instance.CurrentNodeID,
		&instance.Status,
		&instance.Version,
		&instance.CreatedBy,
		&instance.CreatedAt,
		&instance.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		at := completedAt.Time
		instance.CompletedAt = &at
	}

	return &instance, nil
}

func (r *InstanceRepository) loadHistory(ctx context.Context, instance *models.Instance) error {
	query := `
		SELECT seq, from_node_id, choice_kind, choice_id, to_node_id, to_template_id, recorded_at
		FROM instance_history
		WHERE instance_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query instance history: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	history := make([]models.HistoryEntry, 0)

	for rows.Next() {
		var (
			entry        models.HistoryEntry
			toTemplateID sql.NullString
		)

		err := rows.Scan(
			&entry.Seq,
			&entry.FromNodeID,
			&entry.ChoiceKind,
			&entry.ChoiceID,
			&entry.ToNodeID,
			&toTemplateID,
			&entry.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan history entry: %w", err)
		}

		if toTemplateID.Valid {
			entry.ToTemplateID = toTemplateID.String
		}

		history = append(history, entry)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating history: %w", err)
	}

	instance.History = history

	return nil
}
