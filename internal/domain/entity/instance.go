package entity

import (
	"sort"
	"time"
)

// SelectionContext carries the request attributes used to pick a workflow
type SelectionContext struct {
	DepartmentID *string  `json:"department_id,omitempty"`
	PositionID   *string  `json:"position_id,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
}

// Subject is the request being approved
type Subject struct {
	EntityType   string   `json:"entity_type"`
	EntityID     string   `json:"entity_id"`
	RequesterID  string   `json:"requester_id"`
	DepartmentID *string  `json:"department_id,omitempty"`
	PositionID   *string  `json:"position_id,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
}

// SelectionContext projects the subject onto the workflow scope fields
func (s Subject) SelectionContext() SelectionContext {
	return SelectionContext{
		DepartmentID: s.DepartmentID,
		PositionID:   s.PositionID,
		Amount:       s.Amount,
	}
}

// ApprovalInstance is one request travelling through a workflow
type ApprovalInstance struct {
	ID               int64         `json:"id"`
	WorkflowID       int64         `json:"workflow_id"`
	EntityType       string        `json:"entity_type"`
	EntityID         string        `json:"entity_id"`
	RequesterID      string        `json:"requester_id"`
	DepartmentID     *string       `json:"department_id,omitempty"`
	PositionID       *string       `json:"position_id,omitempty"`
	Amount           *float64      `json:"amount,omitempty"`
	CurrentStepOrder int           `json:"current_step_order"`
	Status           string        `json:"status"`
	Version          int64         `json:"version"`
	CancelReason     string        `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Steps            []*StepRecord `json:"steps"`
}

// StepRecord is the runtime trail of one step
type StepRecord struct {
	ID                int64      `json:"id"`
	InstanceID        int64      `json:"instance_id"`
	StepOrder         int        `json:"step_order"`
	ResolvedApprovers []string   `json:"resolved_approvers"`
	Decision          string     `json:"decision"`
	DecidedBy         string     `json:"decided_by,omitempty"`
	DelegatedFrom     string     `json:"delegated_from,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	Comments          string     `json:"comments,omitempty"`
	ActivatedAt       time.Time  `json:"activated_at"`
}

// Subject rebuilds the request attributes captured on the instance
func (i *ApprovalInstance) Subject() Subject {
	return Subject{
		EntityType:   i.EntityType,
		EntityID:     i.EntityID,
		RequesterID:  i.RequesterID,
		DepartmentID: i.DepartmentID,
		PositionID:   i.PositionID,
		Amount:       i.Amount,
	}
}

// IsTerminal reports whether the instance has left in_progress
func (i *ApprovalInstance) IsTerminal() bool {
	return i.Status != StatusInProgress
}

// CurrentStep returns the pending record for the current step, or nil
func (i *ApprovalInstance) CurrentStep() *StepRecord {
	for _, s := range i.Steps {
		if s.StepOrder == i.CurrentStepOrder && s.Decision == DecisionPending {
			return s
		}
	}
	return nil
}

// StepRecord returns the record for the given step order, or nil
func (i *ApprovalInstance) StepRecord(order int) *StepRecord {
	for _, s := range i.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the original
func (i *ApprovalInstance) Clone() *ApprovalInstance {
	c := *i
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	c.Steps = make([]*StepRecord, len(i.Steps))
	for k, s := range i.Steps {
		sc := *s
		sc.ResolvedApprovers = append([]string(nil), s.ResolvedApprovers...)
		if s.DecidedAt != nil {
			t := *s.DecidedAt
			sc.DecidedAt = &t
		}
		c.Steps[k] = &sc
	}
	return &c
}

// IsEligible reports whether userID is in the resolved approver set
func (s *StepRecord) IsEligible(userID string) bool {
	idx := sort.SearchStrings(s.ResolvedApprovers, userID)
	return idx < len(s.ResolvedApprovers) && s.ResolvedApprovers[idx] == userID
}

// AddApprover inserts userID into the set, keeping it sorted
func (s *StepRecord) AddApprover(userID string) {
	if s.IsEligible(userID) {
		return
	}
	s.ResolvedApprovers = NormalizeApprovers(append(s.ResolvedApprovers, userID))
}

// IsDecided reports whether the record has left pending
func (s *StepRecord) IsDecided() bool {
	return s.Decision != DecisionPending
}

// NormalizeApprovers sorts, deduplicates and drops empty ids
func NormalizeApprovers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
