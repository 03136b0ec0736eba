package workflow

// State is the lifecycle status of an approval instance
type State string

const (
	StateInProgress State = "in_progress"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateCancelled  State = "cancelled"
)

var validStates = map[State]bool{
	StateInProgress: true,
	StateApproved:   true,
	StateRejected:   true,
	StateCancelled:  true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// IsTerminal reports whether no further transition may leave the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known instance status
func (s State) IsValid() bool {
	return validStates[s]
}
