package workflow

// Trigger is an engine event that moves an instance through its lifecycle
type Trigger string

const (
	// TriggerAdvance moves to the next step; the instance stays in progress
	TriggerAdvance  Trigger = "advance"
	TriggerComplete Trigger = "complete"
	TriggerReject   Trigger = "reject"
	TriggerCancel   Trigger = "cancel"
)

func (t Trigger) String() string {
	return string(t)
}
