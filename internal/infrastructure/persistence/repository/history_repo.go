package repository

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

const historyColumns = `instance_id, step_order, actor_id, previous_status, new_status, action_type, comments, timestamp`

// HistoryRepository is the append-only audit trail. Rows are written inside
// the engine's transaction so they commit or roll back with the instance.
type HistoryRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

func NewHistoryRepository(db *sqldb.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

func (r *HistoryRepository) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx,
		`INSERT INTO approval_history (`+historyColumns+`) VALUES (`+placeholders(8)+`)`,
		h.InstanceID, h.StepOrder, h.ActorID, h.PreviousStatus, h.NewStatus, h.ActionType, h.Comments, h.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append history",
			zap.Int64("instance_id", h.InstanceID),
			zap.String("action", h.ActionType),
			zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	if h.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get history id: %w", err)
	}
	return nil
}

// GetByInstanceID returns the trail oldest first
func (r *HistoryRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx,
		`SELECT id, `+historyColumns+` FROM approval_history WHERE instance_id = ? ORDER BY id`,
		instanceID,
	)
	if err != nil {
		r.logger.Error("Failed to load history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var trail []*entity.ApprovalHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		trail = append(trail, h)
	}
	return trail, rows.Err()
}

func scanHistory(row rowScanner) (*entity.ApprovalHistory, error) {
	var h entity.ApprovalHistory
	if err := row.Scan(&h.ID, &h.InstanceID, &h.StepOrder, &h.ActorID,
		&h.PreviousStatus, &h.NewStatus, &h.ActionType, &h.Comments, &h.Timestamp); err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return &h, nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
