package workflow

import (
	"context"

	"github.com/garyjia/hr-approval/internal/domain/entity"
	domainwf "github.com/garyjia/hr-approval/internal/domain/workflow"
)

// BuildInstanceStateMachine returns the lifecycle machine for an approval
// instance, starting from its stored status. Only in_progress has outgoing
// transitions. Advancing requires a pending record for the current step and
// completing requires that no step is still waiting for a decision.
func BuildInstanceStateMachine(inst *entity.ApprovalInstance) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateInProgress).
		PermitIf(domainwf.TriggerAdvance, domainwf.StateInProgress, func(context.Context) bool {
			return inst.CurrentStep() != nil
		}).
		PermitIf(domainwf.TriggerComplete, domainwf.StateApproved, func(context.Context) bool {
			return !hasPendingStep(inst)
		}).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerCancel, domainwf.StateCancelled)

	return builder.Build(domainwf.State(inst.Status))
}

func hasPendingStep(inst *entity.ApprovalInstance) bool {
	for _, s := range inst.Steps {
		if s.Decision == entity.DecisionPending {
			return true
		}
	}
	return false
}
