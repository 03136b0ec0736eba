package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// Resolver turns a step definition into the concrete approvers for a subject.
// Results are never cached; the directory is consulted on every call.
type Resolver struct {
	dir port.OrgDirectory
}

// NewResolver creates a resolver backed by the organisation directory
func NewResolver(dir port.OrgDirectory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns a non-empty sorted set of user ids, or an error wrapping
// ErrResolution when nobody qualifies. Directory failures are returned wrapped
// as they are.
func (r *Resolver) Resolve(ctx context.Context, step *entity.StepDefinition, subject entity.Subject) ([]string, error) {
	var (
		ids []string
		err error
	)

	switch step.ApproverType {
	case entity.ApproverSpecificUser:
		ids = []string{step.ApproverID}

	case entity.ApproverDepartmentHead:
		deptID := step.DepartmentID
		if deptID == "" && subject.DepartmentID != nil {
			deptID = *subject.DepartmentID
		}
		if deptID == "" {
			return nil, fmt.Errorf("%w: step %d needs a department and the request has none", ErrResolution, step.StepOrder)
		}
		var head string
		head, err = r.dir.GetDepartmentHead(ctx, deptID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up head of department %s: %w", deptID, err)
		}
		ids = []string{head}

	case entity.ApproverPositionBased:
		ids, err = r.dir.GetUsersByPosition(ctx, step.PositionID, step.DepartmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up holders of position %s: %w", step.PositionID, err)
		}

	case entity.ApproverRoleBased:
		ids, err = r.dir.GetUsersByRole(ctx, step.RoleID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up holders of role %s: %w", step.RoleID, err)
		}

	default:
		return nil, fmt.Errorf("%w: unknown approver type %q", ErrResolution, step.ApproverType)
	}

	ids = entity.NormalizeApprovers(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no eligible approvers for step %d (%s)", ErrResolution, step.StepOrder, step.ApproverType)
	}
	return ids, nil
}
