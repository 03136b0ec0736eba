package workflow

import (
	"context"
	"time"

	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// DecisionRequest is a human decision on the current step of an instance
type DecisionRequest struct {
	InstanceID int64  `json:"instance_id"`
	StepOrder  int    `json:"step_order"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	DelegateTo string `json:"delegate_to,omitempty"`
	Comments   string `json:"comments,omitempty"`
}

// SweepResult summarises one auto-approval sweep
type SweepResult struct {
	Examined     int     `json:"examined"`
	AutoApproved int     `json:"auto_approved"`
	Conflicts    int     `json:"conflicts"`
	Failures     int     `json:"failures"`
	Errors       []error `json:"-"`
}

// Engine drives approval instances through their workflow
type Engine interface {
	// CreateInstance starts approval for a subject. An existing in-progress
	// instance for the same entity is returned unchanged.
	CreateInstance(ctx context.Context, subject entity.Subject) (*entity.ApprovalInstance, error)

	// RecordDecision applies an approve, reject or delegate action to the current step
	RecordDecision(ctx context.Context, req DecisionRequest) (*entity.ApprovalInstance, error)

	// SweepAutoApprovals auto-approves every current step whose timeout elapsed by now
	SweepAutoApprovals(ctx context.Context, now time.Time) (*SweepResult, error)

	Cancel(ctx context.Context, instanceID int64, actorID, reason string) (*entity.ApprovalInstance, error)

	GetInstance(ctx context.Context, instanceID int64) (*entity.ApprovalInstance, error)
	GetInstanceByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error)
	ListPendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error)
	History(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error)
}

// Logger is the logging surface the engine needs
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) InstanceCreated(string)            {}
func (nopMetrics) InstanceCompleted(string, string)  {}
func (nopMetrics) DecisionRecorded(string)           {}
func (nopMetrics) Conflict(string)                   {}
func (nopMetrics) SweepCompleted(int, int, int, int) {}
