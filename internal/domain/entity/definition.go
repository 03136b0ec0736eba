package entity

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidDefinition is returned when a workflow definition fails validation
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// ApproverType selects how a step's approvers are resolved
type ApproverType string

const (
	ApproverSpecificUser   ApproverType = "specific_user"
	ApproverDepartmentHead ApproverType = "department_head"
	ApproverPositionBased  ApproverType = "position_based"
	ApproverRoleBased      ApproverType = "role_based"
)

// IsValid checks the approver type against the known strategies
func (t ApproverType) IsValid() bool {
	switch t {
	case ApproverSpecificUser, ApproverDepartmentHead, ApproverPositionBased, ApproverRoleBased:
		return true
	default:
		return false
	}
}

// WorkflowDefinition is an administrator-authored approval template.
// Scope fields left nil match any request.
type WorkflowDefinition struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	EntityType   string            `json:"entity_type"`
	DepartmentID *string           `json:"department_id,omitempty"`
	PositionID   *string           `json:"position_id,omitempty"`
	MinAmount    *float64          `json:"min_amount,omitempty"`
	MaxAmount    *float64          `json:"max_amount,omitempty"`
	IsActive     bool              `json:"is_active"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Steps        []*StepDefinition `json:"steps"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StepDefinition is one ordered stage of a workflow
type StepDefinition struct {
	ID                    int64             `json:"id"`
	WorkflowID            int64             `json:"workflow_id"`
	StepOrder             int               `json:"step_order"`
	Name                  string            `json:"name"`
	ApproverType          ApproverType      `json:"approver_type"`
	ApproverID            string            `json:"approver_id,omitempty"`
	PositionID            string            `json:"position_id,omitempty"`
	RoleID                string            `json:"role_id,omitempty"`
	DepartmentID          string            `json:"department_id,omitempty"`
	IsRequired            bool              `json:"is_required"`
	CanDelegate           bool              `json:"can_delegate"`
	CanSkip               bool              `json:"can_skip"`
	AutoApprove           bool              `json:"auto_approve"`
	AutoApproveAfterHours int               `json:"auto_approve_after_hours,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

// Specificity counts the non-null scope fields
func (d *WorkflowDefinition) Specificity() int {
	n := 0
	if d.DepartmentID != nil {
		n++
	}
	if d.PositionID != nil {
		n++
	}
	if d.MinAmount != nil {
		n++
	}
	if d.MaxAmount != nil {
		n++
	}
	return n
}

// Matches reports whether every scope field set on the definition is satisfied.
// An amount bound never matches a context without an amount.
func (d *WorkflowDefinition) Matches(sc SelectionContext) bool {
	if d.DepartmentID != nil && (sc.DepartmentID == nil || *sc.DepartmentID != *d.DepartmentID) {
		return false
	}
	if d.PositionID != nil && (sc.PositionID == nil || *sc.PositionID != *d.PositionID) {
		return false
	}
	if d.MinAmount != nil && (sc.Amount == nil || *sc.Amount < *d.MinAmount) {
		return false
	}
	if d.MaxAmount != nil && (sc.Amount == nil || *sc.Amount > *d.MaxAmount) {
		return false
	}
	return true
}

// Step returns the step with the given order, or nil
func (d *WorkflowDefinition) Step(order int) *StepDefinition {
	for _, s := range d.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// NextStep returns the first step ordered after the given one, or nil
func (d *WorkflowDefinition) NextStep(after int) *StepDefinition {
	for _, s := range d.Steps {
		if s.StepOrder > after {
			return s
		}
	}
	return nil
}

// FirstStep returns the lowest-ordered step, or nil for an empty definition
func (d *WorkflowDefinition) FirstStep() *StepDefinition {
	if len(d.Steps) == 0 {
		return nil
	}
	return d.Steps[0]
}

// Validate sorts the steps by order and checks the definition is usable
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.EntityType == "" {
		return fmt.Errorf("%w: entity type is required", ErrInvalidDefinition)
	}
	if d.MinAmount != nil && d.MaxAmount != nil && *d.MinAmount > *d.MaxAmount {
		return fmt.Errorf("%w: min amount %.2f exceeds max amount %.2f", ErrInvalidDefinition, *d.MinAmount, *d.MaxAmount)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}

	for i, step := range d.Steps {
		if step == nil {
			return fmt.Errorf("%w: step %d is empty", ErrInvalidDefinition, i)
		}
	}

	sort.SliceStable(d.Steps, func(i, j int) bool {
		return d.Steps[i].StepOrder < d.Steps[j].StepOrder
	})

	for i, step := range d.Steps {
		if i > 0 && step.StepOrder == d.Steps[i-1].StepOrder {
			return fmt.Errorf("%w: duplicate step order %d", ErrInvalidDefinition, step.StepOrder)
		}
		if err := step.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the parameters required by the approver type are present
func (s *StepDefinition) Validate() error {
	if s.StepOrder < 1 {
		return fmt.Errorf("%w: step order must be at least 1, got %d", ErrInvalidDefinition, s.StepOrder)
	}
	if !s.ApproverType.IsValid() {
		return fmt.Errorf("%w: step %d has unknown approver type %q", ErrInvalidDefinition, s.StepOrder, s.ApproverType)
	}

	switch s.ApproverType {
	case ApproverSpecificUser:
		if s.ApproverID == "" {
			return fmt.Errorf("%w: step %d requires approver_id", ErrInvalidDefinition, s.StepOrder)
		}
	case ApproverPositionBased:
		if s.PositionID == "" {
			return fmt.Errorf("%w: step %d requires position_id", ErrInvalidDefinition, s.StepOrder)
		}
	case ApproverRoleBased:
		if s.RoleID == "" {
			return fmt.Errorf("%w: step %d requires role_id", ErrInvalidDefinition, s.StepOrder)
		}
	}

	if s.AutoApprove && s.AutoApproveAfterHours <= 0 {
		return fmt.Errorf("%w: step %d auto-approves but has no positive auto_approve_after_hours", ErrInvalidDefinition, s.StepOrder)
	}
	return nil
}

// AutoApproveDue reports whether a step activated at activatedAt is due at now
func (s *StepDefinition) AutoApproveDue(activatedAt, now time.Time) bool {
	if !s.AutoApprove || s.AutoApproveAfterHours <= 0 {
		return false
	}
	return !now.Before(activatedAt.Add(time.Duration(s.AutoApproveAfterHours) * time.Hour))
}
