package entity

// Instance status constants. They mirror workflow.State values.
const (
	StatusInProgress = "in_progress"
	StatusApproved   = "approved"
	StatusRejected   = "rejected"
	StatusCancelled  = "cancelled"
)

// Step decision constants for StepRecord
const (
	DecisionPending      = "pending"
	DecisionApproved     = "approved"
	DecisionRejected     = "rejected"
	DecisionSkipped      = "skipped"
	DecisionDelegated    = "delegated"
	DecisionAutoApproved = "auto_approved"
)

// Decision actions accepted from approvers
const (
	ActionApprove  = "approve"
	ActionReject   = "reject"
	ActionDelegate = "delegate"
)

// History action types
const (
	HistoryActionCreated      = "CREATED"
	HistoryActionApproved     = "APPROVED"
	HistoryActionRejected     = "REJECTED"
	HistoryActionSoftRejected = "SOFT_REJECTED"
	HistoryActionDelegated    = "DELEGATED"
	HistoryActionSkipped      = "SKIPPED"
	HistoryActionAutoApproved = "AUTO_APPROVED"
	HistoryActionCancelled    = "CANCELLED"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Common entity types. Any non-empty string is accepted.
const (
	EntityTypeLeave   = "leave"
	EntityTypeLoan    = "loan"
	EntityTypeExpense = "expense"
)
