package port

import (
	"context"
	"time"

	"github.com/garyjia/hr-approval/internal/domain/event"
)

// OrgDirectory answers who holds which organisational function
type OrgDirectory interface {
	// GetDepartmentHead returns "" when the department has no head
	GetDepartmentHead(ctx context.Context, departmentID string) (string, error)

	// GetUsersByPosition returns active holders; departmentID "" means any department
	GetUsersByPosition(ctx context.Context, positionID, departmentID string) ([]string, error)

	GetUsersByRole(ctx context.Context, roleID string) ([]string, error)
}

// NotificationSink receives engine events. Delivery is fire-and-forget.
type NotificationSink interface {
	Notify(ctx context.Context, evt *event.Event)
}

// Clock abstracts time for the engine
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Messenger delivers a text message to a user on an external channel
type Messenger interface {
	Channel() string
	SendText(ctx context.Context, userID, text string) (messageID string, err error)
}

// EngineMetrics records engine outcomes
type EngineMetrics interface {
	InstanceCreated(entityType string)
	InstanceCompleted(entityType, status string)
	DecisionRecorded(action string)
	Conflict(operation string)
	SweepCompleted(examined, autoApproved, conflicts, failures int)
}
