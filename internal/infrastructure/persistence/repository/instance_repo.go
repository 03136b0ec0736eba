package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const instanceColumns = `id, workflow_id, entity_type, entity_id, requester_id,
	department_id, position_id, amount, current_step_order, status, version,
	cancel_reason, created_at, updated_at, completed_at`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sqldb.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

// activeKey is unique across in-progress instances and NULL otherwise, so the
// database rejects a second running approval for the same entity
func activeKey(inst *entity.ApprovalInstance) sql.NullString {
	if inst.Status != entity.StatusInProgress {
		return sql.NullString{}
	}
	return sql.NullString{String: inst.EntityType + ":" + inst.EntityID, Valid: true}
}

// Create creates a new approval instance with its step records
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.ApprovalInstance) error {
	query := `
		INSERT INTO approval_instances (
			workflow_id, entity_type, entity_id, requester_id,
			department_id, position_id, amount, current_step_order, status, version,
			cancel_reason, active_key, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		inst.WorkflowID,
		inst.EntityType,
		inst.EntityID,
		inst.RequesterID,
		nullString(inst.DepartmentID),
		nullString(inst.PositionID),
		nullFloat(inst.Amount),
		inst.CurrentStepOrder,
		inst.Status,
		inst.CancelReason,
		activeKey(inst),
		inst.CreatedAt,
		inst.UpdatedAt,
		nullTime(inst.CompletedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create instance",
			zap.String("entity_type", inst.EntityType),
			zap.String("entity_id", inst.EntityID),
			zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	inst.ID = id
	inst.Version = 1

	for _, rec := range inst.Steps {
		rec.InstanceID = id
		if err := r.insertStepRecord(ctx, exec, rec); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves an approval instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetActiveByEntity retrieves the in-progress instance for an entity
func (r *InstanceRepository) GetActiveByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE active_key = ?`
	return r.getOne(ctx, query, entityType+":"+entityID)
}

// Save writes the instance under an optimistic version check and upserts its step records
func (r *InstanceRepository) Save(ctx context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error {
	query := `
		UPDATE approval_instances
		SET current_step_order = ?, status = ?, version = version + 1,
			cancel_reason = ?, active_key = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND version = ?
	`

	exec := r.db.Executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		inst.CurrentStepOrder,
		inst.Status,
		inst.CancelReason,
		activeKey(inst),
		inst.UpdatedAt,
		nullTime(inst.CompletedAt),
		inst.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to save instance", zap.Int64("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to save instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		r.logger.Info("Instance version conflict",
			zap.Int64("id", inst.ID),
			zap.Int64("expected_version", expectedVersion))
		return port.ErrVersionConflict
	}

	for _, rec := range inst.Steps {
		rec.InstanceID = inst.ID
		if rec.ID == 0 {
			err = r.insertStepRecord(ctx, exec, rec)
		} else {
			err = r.updateStepRecord(ctx, exec, rec)
		}
		if err != nil {
			return err
		}
	}

	inst.Version = expectedVersion + 1
	return nil
}

// ListInProgress returns every in-progress instance ordered by ID
func (r *InstanceRepository) ListInProgress(ctx context.Context) ([]*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE status = ?
		ORDER BY id ASC`
	return r.getMany(ctx, query, entity.StatusInProgress)
}

// ListPendingForApprover returns in-progress instances waiting on userID at the current step
func (r *InstanceRepository) ListPendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error) {
	query := `
		SELECT i.id, i.workflow_id, i.entity_type, i.entity_id, i.requester_id,
			i.department_id, i.position_id, i.amount, i.current_step_order, i.status, i.version,
			i.cancel_reason, i.created_at, i.updated_at, i.completed_at
		FROM approval_instances i
		JOIN approval_step_records s
			ON s.instance_id = i.id AND s.step_order = i.current_step_order AND s.decision = ?
		JOIN approval_step_approvers a
			ON a.step_record_id = s.id AND a.user_id = ?
		WHERE i.status = ?
		ORDER BY i.id ASC
	`
	return r.getMany(ctx, query, entity.DecisionPending, userID, entity.StatusInProgress)
}

func (r *InstanceRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.ApprovalInstance, error) {
	inst, err := scanInstance(r.db.Executor(ctx).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := r.loadStepRecords(ctx, []*entity.ApprovalInstance{inst}); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *InstanceRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalInstance, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*entity.ApprovalInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := r.loadStepRecords(ctx, instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// loadStepRecords attaches step records and approver sets in two queries
func (r *InstanceRepository) loadStepRecords(ctx context.Context, instances []*entity.ApprovalInstance) error {
	if len(instances) == 0 {
		return nil
	}

	byID := make(map[int64]*entity.ApprovalInstance, len(instances))
	ids := make([]interface{}, 0, len(instances))
	for _, inst := range instances {
		inst.Steps = nil
		byID[inst.ID] = inst
		ids = append(ids, inst.ID)
	}

	exec := r.db.Executor(ctx)
	query := `
		SELECT id, instance_id, step_order, decision, decided_by, delegated_from,
			decided_at, comments, activated_at
		FROM approval_step_records
		WHERE instance_id IN (` + placeholders(len(ids)) + `)
		ORDER BY instance_id ASC, step_order ASC
	`
	rows, err := exec.QueryContext(ctx, query, ids...)
	if err != nil {
		r.logger.Error("Failed to load step records", zap.Error(err))
		return fmt.Errorf("failed to load step records: %w", err)
	}
	defer rows.Close()

	records := make(map[int64]*entity.StepRecord)
	for rows.Next() {
		var rec entity.StepRecord
		var decidedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID,
			&rec.InstanceID,
			&rec.StepOrder,
			&rec.Decision,
			&rec.DecidedBy,
			&rec.DelegatedFrom,
			&decidedAt,
			&rec.Comments,
			&rec.ActivatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan step record: %w", err)
		}
		rec.DecidedAt = timePtr(decidedAt)
		records[rec.ID] = &rec
		inst := byID[rec.InstanceID]
		inst.Steps = append(inst.Steps, &rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	approverQuery := `
		SELECT a.step_record_id, a.user_id
		FROM approval_step_approvers a
		JOIN approval_step_records s ON s.id = a.step_record_id
		WHERE s.instance_id IN (` + placeholders(len(ids)) + `)
	`
	arows, err := exec.QueryContext(ctx, approverQuery, ids...)
	if err != nil {
		r.logger.Error("Failed to load step approvers", zap.Error(err))
		return fmt.Errorf("failed to load step approvers: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var recordID int64
		var userID string
		if err := arows.Scan(&recordID, &userID); err != nil {
			return fmt.Errorf("failed to scan step approver: %w", err)
		}
		if rec, ok := records[recordID]; ok {
			rec.ResolvedApprovers = append(rec.ResolvedApprovers, userID)
		}
	}
	if err := arows.Err(); err != nil {
		return err
	}

	for _, rec := range records {
		rec.ResolvedApprovers = entity.NormalizeApprovers(rec.ResolvedApprovers)
	}
	return nil
}

func (r *InstanceRepository) insertStepRecord(ctx context.Context, exec sqldb.Executor, rec *entity.StepRecord) error {
	query := `
		INSERT INTO approval_step_records (
			instance_id, step_order, decision, decided_by, delegated_from,
			decided_at, comments, activated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := exec.ExecContext(ctx, query,
		rec.InstanceID,
		rec.StepOrder,
		rec.Decision,
		rec.DecidedBy,
		rec.DelegatedFrom,
		nullTime(rec.DecidedAt),
		rec.Comments,
		rec.ActivatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create step record",
			zap.Int64("instance_id", rec.InstanceID),
			zap.Int("step_order", rec.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create step record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id

	return r.insertApprovers(ctx, exec, rec)
}

func (r *InstanceRepository) updateStepRecord(ctx context.Context, exec sqldb.Executor, rec *entity.StepRecord) error {
	query := `
		UPDATE approval_step_records
		SET decision = ?, decided_by = ?, delegated_from = ?, decided_at = ?, comments = ?
		WHERE id = ?
	`

	if _, err := exec.ExecContext(ctx, query,
		rec.Decision,
		rec.DecidedBy,
		rec.DelegatedFrom,
		nullTime(rec.DecidedAt),
		rec.Comments,
		rec.ID,
	); err != nil {
		r.logger.Error("Failed to update step record", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update step record: %w", err)
	}

	// delegation can grow the approver set
	if _, err := exec.ExecContext(ctx, `DELETE FROM approval_step_approvers WHERE step_record_id = ?`, rec.ID); err != nil {
		r.logger.Error("Failed to clear step approvers", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to clear step approvers: %w", err)
	}
	return r.insertApprovers(ctx, exec, rec)
}

func (r *InstanceRepository) insertApprovers(ctx context.Context, exec sqldb.Executor, rec *entity.StepRecord) error {
	for _, userID := range rec.ResolvedApprovers {
		_, err := exec.ExecContext(ctx,
			`INSERT INTO approval_step_approvers (step_record_id, user_id) VALUES (?, ?)`,
			rec.ID, userID,
		)
		if err != nil {
			r.logger.Error("Failed to add step approver",
				zap.Int64("step_record_id", rec.ID),
				zap.String("user_id", userID),
				zap.Error(err))
			return fmt.Errorf("failed to add step approver: %w", err)
		}
	}
	return nil
}

func scanInstance(s rowScanner) (*entity.ApprovalInstance, error) {
	var inst entity.ApprovalInstance
	var departmentID, positionID sql.NullString
	var amount sql.NullFloat64
	var completedAt sql.NullTime

	if err := s.Scan(
		&inst.ID,
		&inst.WorkflowID,
		&inst.EntityType,
		&inst.EntityID,
		&inst.RequesterID,
		&departmentID,
		&positionID,
		&amount,
		&inst.CurrentStepOrder,
		&inst.Status,
		&inst.Version,
		&inst.CancelReason,
		&inst.CreatedAt,
		&inst.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	inst.DepartmentID = stringPtr(departmentID)
	inst.PositionID = stringPtr(positionID)
	inst.Amount = floatPtr(amount)
	inst.CompletedAt = timePtr(completedAt)
	return &inst, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
