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

// OrgRepository backs both the read-only OrgDirectory used for approver
// resolution and the OrgStore used by administration. Inactive employees
// never resolve as approvers.
type OrgRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewOrgRepository creates a new organisation repository
func NewOrgRepository(db *sqldb.DB, logger *zap.Logger) *OrgRepository {
	return &OrgRepository{
		db:     db,
		logger: logger,
	}
}

// GetDepartmentHead returns the head of a department, or "" when there is none
func (r *OrgRepository) GetDepartmentHead(ctx context.Context, departmentID string) (string, error) {
	query := `
		SELECT d.head_user_id
		FROM departments d
		LEFT JOIN employees e ON e.user_id = d.head_user_id
		WHERE d.id = ? AND (e.user_id IS NULL OR e.is_active = ?)
	`

	var head string
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, departmentID, true).Scan(&head)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to get department head", zap.String("department_id", departmentID), zap.Error(err))
		return "", fmt.Errorf("failed to get department head: %w", err)
	}
	return head, nil
}

// GetUsersByPosition returns active holders of a position, optionally within one department
func (r *OrgRepository) GetUsersByPosition(ctx context.Context, positionID, departmentID string) ([]string, error) {
	query := `SELECT user_id FROM employees WHERE position_id = ? AND is_active = ?`
	args := []interface{}{positionID, true}
	if departmentID != "" {
		query += ` AND department_id = ?`
		args = append(args, departmentID)
	}
	query += ` ORDER BY user_id ASC`

	users, err := r.userIDs(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to get users by position",
			zap.String("position_id", positionID),
			zap.String("department_id", departmentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get users by position: %w", err)
	}
	return users, nil
}

// GetUsersByRole returns holders of a role; users without an employee row count as active
func (r *OrgRepository) GetUsersByRole(ctx context.Context, roleID string) ([]string, error) {
	query := `
		SELECT ur.user_id
		FROM user_roles ur
		LEFT JOIN employees e ON e.user_id = ur.user_id
		WHERE ur.role_id = ? AND (e.user_id IS NULL OR e.is_active = ?)
		ORDER BY ur.user_id ASC
	`

	users, err := r.userIDs(ctx, query, roleID, true)
	if err != nil {
		r.logger.Error("Failed to get users by role", zap.String("role_id", roleID), zap.Error(err))
		return nil, fmt.Errorf("failed to get users by role: %w", err)
	}
	return users, nil
}

// UpsertDepartment creates or replaces a department
func (r *OrgRepository) UpsertDepartment(ctx context.Context, d *entity.Department) error {
	var query string
	switch r.db.Dialect() {
	case sqldb.DialectMySQL:
		query = `
			INSERT INTO departments (id, name, head_user_id, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), head_user_id = VALUES(head_user_id), updated_at = VALUES(updated_at)
		`
	default:
		query = `
			INSERT INTO departments (id, name, head_user_id, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, head_user_id = excluded.head_user_id, updated_at = excluded.updated_at
		`
	}

	d.UpdatedAt = time.Now().UTC()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, d.ID, d.Name, d.HeadUserID, d.UpdatedAt); err != nil {
		r.logger.Error("Failed to upsert department", zap.String("department_id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert department: %w", err)
	}
	return nil
}

// UpsertEmployee creates or replaces an employee placement
func (r *OrgRepository) UpsertEmployee(ctx context.Context, e *entity.Employee) error {
	var query string
	switch r.db.Dialect() {
	case sqldb.DialectMySQL:
		query = `
			INSERT INTO employees (user_id, name, department_id, position_id, is_active, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), department_id = VALUES(department_id),
				position_id = VALUES(position_id), is_active = VALUES(is_active), updated_at = VALUES(updated_at)
		`
	default:
		query = `
			INSERT INTO employees (user_id, name, department_id, position_id, is_active, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, department_id = excluded.department_id,
				position_id = excluded.position_id, is_active = excluded.is_active, updated_at = excluded.updated_at
		`
	}

	e.UpdatedAt = time.Now().UTC()
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query,
		e.UserID, e.Name, e.DepartmentID, e.PositionID, e.IsActive, e.UpdatedAt,
	); err != nil {
		r.logger.Error("Failed to upsert employee", zap.String("user_id", e.UserID), zap.Error(err))
		return fmt.Errorf("failed to upsert employee: %w", err)
	}
	return nil
}

// AssignRole grants a role; granting twice is a no-op
func (r *OrgRepository) AssignRole(ctx context.Context, userID, roleID string) error {
	query := `INSERT OR IGNORE INTO user_roles (user_id, role_id, created_at) VALUES (?, ?, ?)`
	if r.db.Dialect() == sqldb.DialectMySQL {
		query = `INSERT IGNORE INTO user_roles (user_id, role_id, created_at) VALUES (?, ?, ?)`
	}

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, userID, roleID, time.Now().UTC()); err != nil {
		r.logger.Error("Failed to assign role", zap.String("user_id", userID), zap.String("role_id", roleID), zap.Error(err))
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role grant
func (r *OrgRepository) RevokeRole(ctx context.Context, userID, roleID string) error {
	query := `DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`

	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, userID, roleID); err != nil {
		r.logger.Error("Failed to revoke role", zap.String("user_id", userID), zap.String("role_id", roleID), zap.Error(err))
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

func (r *OrgRepository) userIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// Verify interface compliance
var (
	_ port.OrgDirectory = (*OrgRepository)(nil)
	_ port.OrgStore     = (*OrgRepository)(nil)
)
