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

const notificationColumns = `id, instance_id, event_type, recipient_id, message, status,
	channel, external_id, error_message, attempts, sent_at, created_at, updated_at`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sqldb.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a notification for one recipient
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			instance_id, event_type, recipient_id, message, status,
			channel, external_id, error_message, attempts, sent_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	n.CreatedAt, n.UpdatedAt = n.CreatedAt.UTC(), n.UpdatedAt.UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = now
	}
	if n.Status == "" {
		n.Status = entity.NotificationStatusPending
	}

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		n.InstanceID,
		n.EventType,
		n.RecipientID,
		n.Message,
		n.Status,
		n.Channel,
		n.ExternalID,
		n.ErrorMessage,
		n.Attempts,
		nullTime(n.SentAt),
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("instance_id", n.InstanceID),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id int64) (*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

	n, err := scanNotification(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

// GetByInstanceID lists notifications for an instance in creation order
func (r *NotificationRepository) GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE instance_id = ?
		ORDER BY id ASC`
	return r.list(ctx, query, instanceID)
}

// GetRetryable returns undelivered notifications below the attempt cap that
// have not been touched since q.UpdatedBefore, oldest first
func (r *NotificationRepository) GetRetryable(ctx context.Context, q port.RetryQuery) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status IN (?, ?) AND attempts < ? AND updated_at <= ?
		ORDER BY id ASC
		LIMIT ?`
	return r.list(ctx, query,
		entity.NotificationStatusPending, entity.NotificationStatusFailed,
		q.MaxAttempts, q.UpdatedBefore.UTC(), q.Limit,
	)
}

// Claim bumps the attempt counter only if nobody else has since the row was read
func (r *NotificationRepository) Claim(ctx context.Context, id int64, attempts int, at time.Time) (bool, error) {
	query := `
		UPDATE notifications
		SET attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND attempts = ? AND status IN (?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, at.UTC(), id, attempts,
		entity.NotificationStatusPending, entity.NotificationStatusFailed)
	if err != nil {
		r.logger.Error("Failed to claim notification", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return affected == 1, nil
}

// MarkSent records a successful delivery
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, externalID string, at time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, external_id = ?, error_message = '', sent_at = ?, updated_at = ?
		WHERE id = ?
	`

	at = at.UTC()
	_, err := r.db.Executor(ctx).ExecContext(ctx, query, entity.NotificationStatusSent, externalID, at, at, id)
	if err != nil {
		r.logger.Error("Failed to mark notification as sent", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification as sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error {
	query := `UPDATE notifications SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query, entity.NotificationStatusFailed, errMsg, at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark notification as failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification as failed: %w", err)
	}
	return nil
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Notification, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var list []*entity.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

func scanNotification(s rowScanner) (*entity.Notification, error) {
	var n entity.Notification
	var sentAt sql.NullTime

	if err := s.Scan(
		&n.ID,
		&n.InstanceID,
		&n.EventType,
		&n.RecipientID,
		&n.Message,
		&n.Status,
		&n.Channel,
		&n.ExternalID,
		&n.ErrorMessage,
		&n.Attempts,
		&sentAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	n.SentAt = timePtr(sentAt)
	return &n, nil
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
