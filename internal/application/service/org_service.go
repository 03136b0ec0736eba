package service

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// OrgService maintains the organisation data the approver resolver reads
type OrgService interface {
	UpsertDepartment(ctx context.Context, d *entity.Department) error
	UpsertEmployee(ctx context.Context, e *entity.Employee) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
}

type orgServiceImpl struct {
	store  port.OrgStore
	logger Logger
}

func NewOrgService(store port.OrgStore, logger Logger) OrgService {
	return &orgServiceImpl{store: store, logger: logger}
}

func (s *orgServiceImpl) UpsertDepartment(ctx context.Context, d *entity.Department) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("%w: department id is required", appwf.ErrInvalidInput)
	}
	if err := s.store.UpsertDepartment(ctx, d); err != nil {
		return fmt.Errorf("upsert department: %w", err)
	}
	s.logger.Info("Department saved", "department_id", d.ID, "head_user_id", d.HeadUserID)
	return nil
}

func (s *orgServiceImpl) UpsertEmployee(ctx context.Context, e *entity.Employee) error {
	if e == nil || e.UserID == "" {
		return fmt.Errorf("%w: user id is required", appwf.ErrInvalidInput)
	}
	if err := s.store.UpsertEmployee(ctx, e); err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	s.logger.Info("Employee saved",
		"user_id", e.UserID,
		"department_id", e.DepartmentID,
		"position_id", e.PositionID,
		"active", e.IsActive,
	)
	return nil
}

func (s *orgServiceImpl) AssignRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", appwf.ErrInvalidInput)
	}
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	s.logger.Info("Role assigned", "user_id", userID, "role_id", roleID)
	return nil
}

func (s *orgServiceImpl) RevokeRole(ctx context.Context, userID, roleID string) error {
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", appwf.ErrInvalidInput)
	}
	if err := s.store.RevokeRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	s.logger.Info("Role revoked", "user_id", userID, "role_id", roleID)
	return nil
}
