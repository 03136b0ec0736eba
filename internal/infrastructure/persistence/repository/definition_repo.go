package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const workflowColumns = `id, name, entity_type, department_id, position_id,
	min_amount, max_amount, is_active, metadata, created_at, updated_at`

const stepDefinitionColumns = `id, workflow_id, step_order, name, approver_type,
	approver_id, position_id, role_id, department_id,
	is_required, can_delegate, can_skip, auto_approve, auto_approve_after_hours, metadata`

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new workflow definition repository
func NewDefinitionRepository(db *sqldb.DB, logger *zap.Logger) port.DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the workflow and its steps. Callers wrap it in a transaction.
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	meta, err := encodeMetadata(def.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	query := `
		INSERT INTO approval_workflows (
			name, entity_type, department_id, position_id,
			min_amount, max_amount, is_active, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		def.Name,
		def.EntityType,
		nullString(def.DepartmentID),
		nullString(def.PositionID),
		nullFloat(def.MinAmount),
		nullFloat(def.MaxAmount),
		def.IsActive,
		meta,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow definition", zap.String("name", def.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	def.ID = id

	for _, step := range def.Steps {
		step.WorkflowID = id
		if err := r.insertStep(ctx, exec, step); err != nil {
			return err
		}
	}

	return nil
}

func (r *DefinitionRepository) insertStep(ctx context.Context, exec sqldb.Executor, step *entity.StepDefinition) error {
	meta, err := encodeMetadata(step.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_step_definitions (
			workflow_id, step_order, name, approver_type,
			approver_id, position_id, role_id, department_id,
			is_required, can_delegate, can_skip, auto_approve, auto_approve_after_hours, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := exec.ExecContext(ctx, query,
		step.WorkflowID,
		step.StepOrder,
		step.Name,
		string(step.ApproverType),
		step.ApproverID,
		step.PositionID,
		step.RoleID,
		step.DepartmentID,
		step.IsRequired,
		step.CanDelegate,
		step.CanSkip,
		step.AutoApprove,
		step.AutoApproveAfterHours,
		meta,
	)
	if err != nil {
		r.logger.Error("Failed to create step definition",
			zap.Int64("workflow_id", step.WorkflowID),
			zap.Int("step_order", step.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create step definition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	step.ID = id
	return nil
}

// GetByID retrieves a workflow definition with its steps
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE id = ?`

	def, err := scanWorkflow(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if err := r.loadSteps(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// List returns all definitions, optionally restricted to one entity type
func (r *DefinitionRepository) List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + ` FROM approval_workflows`
	var args []interface{}
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY id ASC`

	return r.query(ctx, query, args...)
}

// ListActiveByEntityType returns active definitions for an entity type
func (r *DefinitionRepository) ListActiveByEntityType(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE entity_type = ? AND is_active = ?
		ORDER BY id ASC`

	return r.query(ctx, query, entityType, true)
}

// SetActive toggles whether a definition takes part in selection
func (r *DefinitionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE approval_workflows SET is_active = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		r.logger.Error("Failed to update workflow active flag", zap.Int64("id", id), zap.Bool("active", active), zap.Error(err))
		return fmt.Errorf("failed to update workflow active flag: %w", err)
	}
	return nil
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.WorkflowDefinition, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// close before issuing step queries on the same connection
	rows.Close()

	for _, def := range defs {
		if err := r.loadSteps(ctx, def); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *DefinitionRepository) loadSteps(ctx context.Context, def *entity.WorkflowDefinition) error {
	query := `SELECT ` + stepDefinitionColumns + `
		FROM approval_step_definitions
		WHERE workflow_id = ?
		ORDER BY step_order ASC`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, def.ID)
	if err != nil {
		r.logger.Error("Failed to load step definitions", zap.Int64("workflow_id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to load step definitions: %w", err)
	}
	defer rows.Close()

	def.Steps = nil
	for rows.Next() {
		var step entity.StepDefinition
		var approverType string
		var meta sql.NullString
		if err := rows.Scan(
			&step.ID,
			&step.WorkflowID,
			&step.StepOrder,
			&step.Name,
			&approverType,
			&step.ApproverID,
			&step.PositionID,
			&step.RoleID,
			&step.DepartmentID,
			&step.IsRequired,
			&step.CanDelegate,
			&step.CanSkip,
			&step.AutoApprove,
			&step.AutoApproveAfterHours,
			&meta,
		); err != nil {
			return fmt.Errorf("failed to scan step definition: %w", err)
		}
		step.ApproverType = entity.ApproverType(approverType)
		if step.Metadata, err = decodeMetadata(meta); err != nil {
			return err
		}
		def.Steps = append(def.Steps, &step)
	}
	return rows.Err()
}

func scanWorkflow(s rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var departmentID, positionID, meta sql.NullString
	var minAmount, maxAmount sql.NullFloat64

	if err := s.Scan(
		&def.ID,
		&def.Name,
		&def.EntityType,
		&departmentID,
		&positionID,
		&minAmount,
		&maxAmount,
		&def.IsActive,
		&meta,
		&def.CreatedAt,
		&def.UpdatedAt,
	); err != nil {
		return nil, err
	}

	def.DepartmentID = stringPtr(departmentID)
	def.PositionID = stringPtr(positionID)
	def.MinAmount = floatPtr(minAmount)
	def.MaxAmount = floatPtr(maxAmount)

	var err error
	if def.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	return &def, nil
}

// Verify interface compliance
var _ port.DefinitionRepository = (*DefinitionRepository)(nil)
