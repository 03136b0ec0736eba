package entity

import "time"

// ApprovalHistory is one append-only audit row for an instance
type ApprovalHistory struct {
	ID             int64     `json:"id"`
	InstanceID     int64     `json:"instance_id"`
	StepOrder      int       `json:"step_order"`
	ActorID        string    `json:"actor_id"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ActionType     string    `json:"action_type"`
	Comments       string    `json:"comments,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
