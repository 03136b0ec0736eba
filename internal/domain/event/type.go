package event

// Type identifies the type of domain event
type Type string

const (
	TypeInstanceCreated   Type = "instance.created"
	TypeInstanceApproved  Type = "instance.approved"
	TypeInstanceRejected  Type = "instance.rejected"
	TypeInstanceCancelled Type = "instance.cancelled"
	TypeStepActivated     Type = "step.activated"
	TypeStepSkipped       Type = "step.skipped"
	TypeStepSoftRejected  Type = "step.soft_rejected"
	TypeStepDelegated     Type = "step.delegated"
	TypeStepAutoApproved  Type = "step.auto_approved"
)

func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeInstanceApproved,
		TypeInstanceRejected,
		TypeInstanceCancelled,
		TypeStepActivated,
		TypeStepSkipped,
		TypeStepSoftRejected,
		TypeStepDelegated,
		TypeStepAutoApproved:
		return true
	default:
		return false
	}
}
