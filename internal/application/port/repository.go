package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// ErrVersionConflict is returned by InstanceRepository.Save when the stored
// version no longer matches the expected one
var ErrVersionConflict = errors.New("instance version conflict")

// DefinitionRepository persists workflow definitions and their steps.
// Definitions are immutable once created apart from the active flag.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error)

	// ListActiveByEntityType returns active definitions with steps sorted by order
	ListActiveByEntityType(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error)

	SetActive(ctx context.Context, id int64, active bool) error
}

// InstanceRepository persists approval instances together with their step records
type InstanceRepository interface {
	// Create inserts the instance and its step records, assigning IDs and version 1
	Create(ctx context.Context, inst *entity.ApprovalInstance) error

	// GetByID loads the instance with step records; nil, nil when absent
	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)

	// GetActiveByEntity returns the in-progress instance for an entity, if any
	GetActiveByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error)

	// Save writes the instance and its step records if the stored version equals
	// expectedVersion, then bumps inst.Version. Returns ErrVersionConflict otherwise.
	Save(ctx context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error

	ListInProgress(ctx context.Context) ([]*entity.ApprovalInstance, error)

	// ListPendingForApprover returns in-progress instances whose current step lists userID
	ListPendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error)
}

// HistoryRepository appends audit rows for instance transitions
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ApprovalHistory) error
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error)
}

// NotificationRepository stores per-recipient notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	GetByID(ctx context.Context, id int64) (*entity.Notification, error)
	GetByInstanceID(ctx context.Context, instanceID int64) ([]*entity.Notification, error)
	GetRetryable(ctx context.Context, q RetryQuery) ([]*entity.Notification, error)

	// Claim counts a new delivery attempt. It returns false when the row no
	// longer has the given attempt count or was already delivered.
	Claim(ctx context.Context, id int64, attempts int, at time.Time) (bool, error)

	MarkSent(ctx context.Context, id int64, externalID string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, errMsg string, at time.Time) error
}

// RetryQuery selects undelivered notifications that may be attempted again
type RetryQuery struct {
	UpdatedBefore time.Time
	MaxAttempts   int
	Limit         int
}

// OrgStore is the write side of the organisation directory
type OrgStore interface {
	UpsertDepartment(ctx context.Context, d *entity.Department) error
	UpsertEmployee(ctx context.Context, e *entity.Employee) error
	AssignRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
