package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/domain/event"
	domainwf "github.com/garyjia/hr-approval/internal/domain/workflow"
)

// DefaultSystemActor decides skipped and auto-approved steps
const DefaultSystemActor = "system"

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	defs        port.DefinitionRepository
	instances   port.InstanceRepository
	history     port.HistoryRepository
	txManager   port.TransactionManager
	selector    *Selector
	resolver    *Resolver
	sink        port.NotificationSink
	clock       port.Clock
	metrics     port.EngineMetrics
	logger      Logger
	systemActor string
}

// EngineOption configures the engine
type EngineOption func(*engineImpl)

// WithNotifier sets the sink that receives events after each successful save
func WithNotifier(sink port.NotificationSink) EngineOption {
	return func(e *engineImpl) {
		e.sink = sink
	}
}

func WithClock(clock port.Clock) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

func WithMetrics(m port.EngineMetrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithSystemActor overrides the identity recorded for automatic decisions
func WithSystemActor(id string) EngineOption {
	return func(e *engineImpl) {
		if id != "" {
			e.systemActor = id
		}
	}
}

// NewEngine creates the approval engine
func NewEngine(
	defs port.DefinitionRepository,
	instances port.InstanceRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	directory port.OrgDirectory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		defs:        defs,
		instances:   instances,
		history:     history,
		txManager:   txManager,
		selector:    NewSelector(defs),
		resolver:    NewResolver(directory),
		clock:       port.SystemClock{},
		metrics:     nopMetrics{},
		logger:      nopLogger{},
		systemActor: DefaultSystemActor,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateInstance selects a workflow, resolves the first step and persists the instance
func (e *engineImpl) CreateInstance(ctx context.Context, subject entity.Subject) (*entity.ApprovalInstance, error) {
	if subject.EntityType == "" || subject.EntityID == "" || subject.RequesterID == "" {
		return nil, fmt.Errorf("%w: entity type, entity id and requester id are required", ErrInvalidInput)
	}

	if existing, err := e.instances.GetActiveByEntity(ctx, subject.EntityType, subject.EntityID); err != nil {
		return nil, fmt.Errorf("failed to check existing instance: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	def, err := e.selector.Select(ctx, subject.EntityType, subject.SelectionContext())
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	inst := &entity.ApprovalInstance{
		WorkflowID:   def.ID,
		EntityType:   subject.EntityType,
		EntityID:     subject.EntityID,
		RequesterID:  subject.RequesterID,
		DepartmentID: subject.DepartmentID,
		PositionID:   subject.PositionID,
		Amount:       subject.Amount,
		Status:       entity.StatusInProgress,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	cs, err := newChangeSet(inst, now)
	if err != nil {
		return nil, err
	}
	cs.audit(0, subject.RequesterID, entity.HistoryActionCreated, "", "")
	cs.emit(event.TypeInstanceCreated, 0, []string{subject.RequesterID}, nil)

	if err := e.activate(ctx, cs, def, def.FirstStep()); err != nil {
		return nil, err
	}

	if err := e.persist(ctx, cs, 0, "create"); err != nil {
		// A concurrent submit for the same entity may have won the insert
		if existing, lookupErr := e.instances.GetActiveByEntity(ctx, subject.EntityType, subject.EntityID); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	e.metrics.InstanceCreated(inst.EntityType)
	if inst.IsTerminal() {
		e.metrics.InstanceCompleted(inst.EntityType, inst.Status)
	}
	e.logger.Info("Approval instance created",
		"instance_id", inst.ID,
		"workflow_id", def.ID,
		"entity_type", inst.EntityType,
		"entity_id", inst.EntityID,
		"status", inst.Status,
		"current_step", inst.CurrentStepOrder)

	e.publish(ctx, cs)
	return inst, nil
}

// RecordDecision applies a human decision to the current step
func (e *engineImpl) RecordDecision(ctx context.Context, req DecisionRequest) (*entity.ApprovalInstance, error) {
	if req.ActorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}
	switch req.Action {
	case entity.ActionApprove, entity.ActionReject, entity.ActionDelegate:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, req.Action)
	}

	inst, err := e.load(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.IsTerminal() {
		return nil, fmt.Errorf("%w: instance %d is already %s", ErrInvalidState, inst.ID, inst.Status)
	}
	if req.StepOrder != inst.CurrentStepOrder {
		return nil, fmt.Errorf("%w: step %d is not current, instance %d is at step %d", ErrInvalidState, req.StepOrder, inst.ID, inst.CurrentStepOrder)
	}

	def, err := e.definition(ctx, inst.WorkflowID)
	if err != nil {
		return nil, err
	}
	stepDef := def.Step(inst.CurrentStepOrder)
	if stepDef == nil {
		return nil, fmt.Errorf("%w: workflow %d has no step %d", ErrInvalidState, def.ID, inst.CurrentStepOrder)
	}

	now := e.clock.Now()
	cs, err := newChangeSet(inst.Clone(), now)
	if err != nil {
		return nil, err
	}
	rec := cs.inst.CurrentStep()
	if rec == nil {
		return nil, fmt.Errorf("%w: step %d of instance %d is not pending", ErrInvalidState, inst.CurrentStepOrder, inst.ID)
	}
	if !rec.IsEligible(req.ActorID) {
		return nil, fmt.Errorf("%w: %s is not an approver for step %d", ErrUnauthorized, req.ActorID, rec.StepOrder)
	}

	prev := cs.inst.Status
	switch req.Action {
	case entity.ActionApprove:
		decide(rec, entity.DecisionApproved, req.ActorID, req.Comments, now)
		cs.audit(rec.StepOrder, req.ActorID, entity.HistoryActionApproved, prev, req.Comments)
		err = e.advance(ctx, cs, def, stepDef)

	case entity.ActionReject:
		decide(rec, entity.DecisionRejected, req.ActorID, req.Comments, now)
		if stepDef.IsRequired {
			if err = cs.fire(ctx, domainwf.TriggerReject); err != nil {
				break
			}
			cs.audit(rec.StepOrder, req.ActorID, entity.HistoryActionRejected, prev, req.Comments)
			cs.emit(event.TypeInstanceRejected, rec.StepOrder, []string{cs.inst.RequesterID}, map[string]interface{}{
				event.KeyActorID:  req.ActorID,
				event.KeyComments: req.Comments,
			})
			break
		}
		cs.audit(rec.StepOrder, req.ActorID, entity.HistoryActionSoftRejected, prev, req.Comments)
		cs.emit(event.TypeStepSoftRejected, rec.StepOrder, []string{cs.inst.RequesterID}, map[string]interface{}{
			event.KeyActorID:  req.ActorID,
			event.KeyComments: req.Comments,
		})
		e.logger.Info("Optional step rejected, continuing",
			"instance_id", inst.ID,
			"step_order", rec.StepOrder,
			"actor_id", req.ActorID)
		err = e.advance(ctx, cs, def, stepDef)

	case entity.ActionDelegate:
		if !stepDef.CanDelegate {
			return nil, fmt.Errorf("%w: step %d does not allow delegation", ErrUnauthorized, rec.StepOrder)
		}
		if req.DelegateTo == "" {
			return nil, fmt.Errorf("%w: delegate_to is required for delegation", ErrInvalidInput)
		}
		if req.DelegateTo == req.ActorID {
			return nil, fmt.Errorf("%w: %s cannot delegate to themselves", ErrUnauthorized, req.ActorID)
		}
		rec.AddApprover(req.DelegateTo)
		decide(rec, entity.DecisionDelegated, req.DelegateTo, req.Comments, now)
		rec.DelegatedFrom = req.ActorID
		cs.audit(rec.StepOrder, req.ActorID, entity.HistoryActionDelegated, prev, req.Comments)
		cs.emit(event.TypeStepDelegated, rec.StepOrder, []string{req.DelegateTo}, map[string]interface{}{
			event.KeyActorID:    req.ActorID,
			event.KeyDelegateTo: req.DelegateTo,
		})
		err = e.advance(ctx, cs, def, stepDef)
	}
	if err != nil {
		return nil, err
	}

	if err := e.persist(ctx, cs, inst.Version, "decision"); err != nil {
		return nil, err
	}

	e.metrics.DecisionRecorded(req.Action)
	if cs.inst.IsTerminal() {
		e.metrics.InstanceCompleted(cs.inst.EntityType, cs.inst.Status)
	}
	e.logger.Info("Decision recorded",
		"instance_id", inst.ID,
		"step_order", req.StepOrder,
		"actor_id", req.ActorID,
		"action", req.Action,
		"status", cs.inst.Status,
		"current_step", cs.inst.CurrentStepOrder)

	e.publish(ctx, cs)
	return cs.inst, nil
}

// SweepAutoApprovals auto-approves due steps. Instances that change underneath
// the sweep are counted as conflicts and left for the next run.
func (e *engineImpl) SweepAutoApprovals(ctx context.Context, now time.Time) (*SweepResult, error) {
	active, err := e.instances.ListInProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress instances: %w", err)
	}

	result := &SweepResult{}
	defs := make(map[int64]*entity.WorkflowDefinition)

	for _, inst := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Examined++

		def, ok := defs[inst.WorkflowID]
		if !ok {
			def, err = e.definition(ctx, inst.WorkflowID)
			if err != nil {
				result.Failures++
				result.Errors = append(result.Errors, err)
				e.logger.Error("Sweep could not load workflow", "instance_id", inst.ID, "workflow_id", inst.WorkflowID, "error", err)
				continue
			}
			defs[inst.WorkflowID] = def
		}

		approved, err := e.autoApprove(ctx, inst, def, now)
		switch {
		case errors.Is(err, ErrConflict):
			result.Conflicts++
			e.logger.Info("Sweep skipped instance modified concurrently", "instance_id", inst.ID)
		case err != nil:
			result.Failures++
			result.Errors = append(result.Errors, fmt.Errorf("instance %d: %w", inst.ID, err))
			e.logger.Error("Sweep failed to auto-approve", "instance_id", inst.ID, "error", err)
		case approved:
			result.AutoApproved++
		}
	}

	e.metrics.SweepCompleted(result.Examined, result.AutoApproved, result.Conflicts, result.Failures)
	e.logger.Info("Auto-approval sweep finished",
		"examined", result.Examined,
		"auto_approved", result.AutoApproved,
		"conflicts", result.Conflicts,
		"failures", result.Failures)

	return result, nil
}

func (e *engineImpl) autoApprove(ctx context.Context, inst *entity.ApprovalInstance, def *entity.WorkflowDefinition, now time.Time) (bool, error) {
	stepDef := def.Step(inst.CurrentStepOrder)
	rec := inst.CurrentStep()
	if inst.IsTerminal() || stepDef == nil || rec == nil || !stepDef.AutoApproveDue(rec.ActivatedAt, now) {
		return false, nil
	}

	cs, err := newChangeSet(inst.Clone(), now)
	if err != nil {
		return false, err
	}
	rec = cs.inst.CurrentStep()

	comment := fmt.Sprintf("auto-approved after %d hours", stepDef.AutoApproveAfterHours)
	decide(rec, entity.DecisionAutoApproved, e.systemActor, comment, now)
	cs.audit(rec.StepOrder, e.systemActor, entity.HistoryActionAutoApproved, cs.inst.Status, comment)
	cs.emit(event.TypeStepAutoApproved, rec.StepOrder, []string{cs.inst.RequesterID}, nil)

	if err := e.advance(ctx, cs, def, stepDef); err != nil {
		return false, err
	}
	if err := e.persist(ctx, cs, inst.Version, "sweep"); err != nil {
		return false, err
	}

	e.metrics.DecisionRecorded(entity.DecisionAutoApproved)
	if cs.inst.IsTerminal() {
		e.metrics.InstanceCompleted(cs.inst.EntityType, cs.inst.Status)
	}
	e.publish(ctx, cs)
	return true, nil
}

// Cancel moves an in-progress instance to cancelled
func (e *engineImpl) Cancel(ctx context.Context, instanceID int64, actorID, reason string) (*entity.ApprovalInstance, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrInvalidInput)
	}

	inst, err := e.load(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	cs, err := newChangeSet(inst.Clone(), e.clock.Now())
	if err != nil {
		return nil, err
	}
	if !cs.machine.CanFire(domainwf.TriggerCancel) {
		return nil, fmt.Errorf("%w: instance %d is already %s", ErrInvalidState, inst.ID, inst.Status)
	}
	prev := cs.inst.Status
	if err := cs.fire(ctx, domainwf.TriggerCancel); err != nil {
		return nil, err
	}
	cs.inst.CancelReason = reason

	recipients := []string{cs.inst.RequesterID}
	if rec := cs.inst.StepRecord(cs.inst.CurrentStepOrder); rec != nil && !rec.IsDecided() {
		recipients = append(recipients, rec.ResolvedApprovers...)
	}
	cs.audit(cs.inst.CurrentStepOrder, actorID, entity.HistoryActionCancelled, prev, reason)
	cs.emit(event.TypeInstanceCancelled, cs.inst.CurrentStepOrder, entity.NormalizeApprovers(recipients), map[string]interface{}{
		event.KeyActorID: actorID,
		event.KeyReason:  reason,
	})

	if err := e.persist(ctx, cs, inst.Version, "cancel"); err != nil {
		return nil, err
	}

	e.metrics.InstanceCompleted(cs.inst.EntityType, cs.inst.Status)
	e.logger.Info("Approval instance cancelled", "instance_id", inst.ID, "actor_id", actorID)

	e.publish(ctx, cs)
	return cs.inst, nil
}

func (e *engineImpl) GetInstance(ctx context.Context, instanceID int64) (*entity.ApprovalInstance, error) {
	return e.load(ctx, instanceID)
}

func (e *engineImpl) GetInstanceByEntity(ctx context.Context, entityType, entityID string) (*entity.ApprovalInstance, error) {
	inst, err := e.instances.GetActiveByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance for %s/%s: %w", entityType, entityID, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: no active instance for %s/%s", ErrNotFound, entityType, entityID)
	}
	return inst, nil
}

func (e *engineImpl) ListPendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	list, err := e.instances.ListPendingForApprover(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals for %s: %w", userID, err)
	}
	return list, nil
}

func (e *engineImpl) History(ctx context.Context, instanceID int64) ([]*entity.ApprovalHistory, error) {
	if _, err := e.load(ctx, instanceID); err != nil {
		return nil, err
	}
	records, err := e.history.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for instance %d: %w", instanceID, err)
	}
	return records, nil
}

// advance activates the step after current, or completes the instance
func (e *engineImpl) advance(ctx context.Context, cs *changeSet, def *entity.WorkflowDefinition, current *entity.StepDefinition) error {
	return e.activate(ctx, cs, def, def.NextStep(current.StepOrder))
}

// activate makes step current. Skippable steps nobody can approve are recorded
// as skipped and the walk continues; running past the last step approves the instance.
func (e *engineImpl) activate(ctx context.Context, cs *changeSet, def *entity.WorkflowDefinition, step *entity.StepDefinition) error {
	subject := cs.inst.Subject()

	for step != nil {
		approvers, err := e.resolver.Resolve(ctx, step, subject)
		if err == nil {
			cs.inst.Steps = append(cs.inst.Steps, &entity.StepRecord{
				InstanceID:        cs.inst.ID,
				StepOrder:         step.StepOrder,
				ResolvedApprovers: approvers,
				Decision:          entity.DecisionPending,
				ActivatedAt:       cs.now,
			})
			cs.inst.CurrentStepOrder = step.StepOrder
			if err := cs.fire(ctx, domainwf.TriggerAdvance); err != nil {
				return err
			}
			cs.emit(event.TypeStepActivated, step.StepOrder, approvers, nil)
			return nil
		}

		if !errors.Is(err, ErrResolution) || !step.CanSkip {
			return err
		}

		decidedAt := cs.now
		cs.inst.Steps = append(cs.inst.Steps, &entity.StepRecord{
			InstanceID:        cs.inst.ID,
			StepOrder:         step.StepOrder,
			ResolvedApprovers: []string{},
			Decision:          entity.DecisionSkipped,
			DecidedBy:         e.systemActor,
			DecidedAt:         &decidedAt,
			Comments:          err.Error(),
			ActivatedAt:       cs.now,
		})
		cs.inst.CurrentStepOrder = step.StepOrder
		h := cs.audit(step.StepOrder, e.systemActor, entity.HistoryActionSkipped, cs.inst.Status, err.Error())
		h.NewStatus = cs.inst.Status
		cs.emit(event.TypeStepSkipped, step.StepOrder, []string{cs.inst.RequesterID}, nil)

		step = def.NextStep(step.StepOrder)
	}

	if err := cs.fire(ctx, domainwf.TriggerComplete); err != nil {
		return err
	}
	cs.emit(event.TypeInstanceApproved, cs.inst.CurrentStepOrder, []string{cs.inst.RequesterID}, nil)
	return nil
}

func (e *engineImpl) persist(ctx context.Context, cs *changeSet, expectedVersion int64, operation string) error {
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if cs.inst.ID == 0 {
			if err := e.instances.Create(txCtx, cs.inst); err != nil {
				return err
			}
		} else if err := e.instances.Save(txCtx, cs.inst, expectedVersion); err != nil {
			return err
		}

		for _, h := range cs.history {
			h.InstanceID = cs.inst.ID
			if h.NewStatus == "" {
				h.NewStatus = cs.inst.Status
			}
			if err := e.history.Create(txCtx, h); err != nil {
				return fmt.Errorf("failed to write history: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, port.ErrVersionConflict) {
		e.metrics.Conflict(operation)
		return fmt.Errorf("%w: instance %d changed since it was loaded", ErrConflict, cs.inst.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to persist instance: %w", err)
	}
	return nil
}

func (e *engineImpl) publish(ctx context.Context, cs *changeSet) {
	if e.sink == nil {
		return
	}

	var correlationID string
	for _, pe := range cs.events {
		evt := event.NewEventWithCorrelation(pe.typ, cs.inst.ID, pe.payload, correlationID)
		if correlationID == "" {
			correlationID = evt.CorrelationID
		}
		e.sink.Notify(ctx, evt)
	}
}

func (e *engineImpl) load(ctx context.Context, id int64) (*entity.ApprovalInstance, error) {
	inst, err := e.instances.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %d: %w", id, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrNotFound, id)
	}
	return inst, nil
}

func (e *engineImpl) definition(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := e.defs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %d: %w", id, err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: workflow %d", ErrNotFound, id)
	}
	return def, nil
}

func decide(rec *entity.StepRecord, decision, by, comments string, at time.Time) {
	t := at
	rec.Decision = decision
	rec.DecidedBy = by
	rec.DecidedAt = &t
	rec.Comments = comments
}

// changeSet collects the effects of one engine operation on a working copy
// of an instance. Nothing leaves it until persist succeeds.
type changeSet struct {
	inst    *entity.ApprovalInstance
	machine domainwf.StateMachine
	now     time.Time
	history []*entity.ApprovalHistory
	events  []pendingEvent
}

type pendingEvent struct {
	typ     event.Type
	payload map[string]interface{}
}

func newChangeSet(inst *entity.ApprovalInstance, now time.Time) (*changeSet, error) {
	state := domainwf.State(inst.Status)
	if !state.IsValid() {
		return nil, fmt.Errorf("%w: instance %d has unknown status %q", ErrInvalidState, inst.ID, inst.Status)
	}
	return &changeSet{
		inst:    inst,
		machine: BuildInstanceStateMachine(inst),
		now:     now,
	}, nil
}

func (c *changeSet) fire(ctx context.Context, trigger domainwf.Trigger) error {
	if err := c.machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%w: instance %d: %v", ErrInvalidState, c.inst.ID, err)
	}
	c.inst.Status = c.machine.State().String()
	c.inst.UpdatedAt = c.now
	if c.machine.State().IsTerminal() {
		t := c.now
		c.inst.CompletedAt = &t
	}
	return nil
}

// audit appends a history row. NewStatus is filled with the final status at persist time.
func (c *changeSet) audit(stepOrder int, actor, action, previous, comments string) *entity.ApprovalHistory {
	h := &entity.ApprovalHistory{
		StepOrder:      stepOrder,
		ActorID:        actor,
		PreviousStatus: previous,
		ActionType:     action,
		Comments:       comments,
		Timestamp:      c.now,
	}
	c.history = append(c.history, h)
	return h
}

func (c *changeSet) emit(typ event.Type, stepOrder int, recipients []string, extra map[string]interface{}) {
	payload := map[string]interface{}{
		event.KeyEntityType:  c.inst.EntityType,
		event.KeyEntityID:    c.inst.EntityID,
		event.KeyRequesterID: c.inst.RequesterID,
		event.KeyStepOrder:   stepOrder,
		event.KeyRecipients:  append([]string(nil), recipients...),
	}
	for k, v := range extra {
		payload[k] = v
	}
	c.events = append(c.events, pendingEvent{typ: typ, payload: payload})
}
