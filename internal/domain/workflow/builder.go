package workflow

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed means every guarded transition for the trigger refused
	ErrGuardFailed = errors.New("guard condition failed")
)

// StateMachine holds one instance's state; Fire takes the first transition whose guard passes
type StateMachine interface {
	State() State
	// CanFire reports whether the trigger is configured for the current state; guards are not evaluated
	CanFire(trigger Trigger) bool
	Fire(ctx context.Context, trigger Trigger) error
}

// GuardFunc decides whether a configured transition may run
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects transition rules and produces machines from them
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions leaving one state
type StateConfiguration interface {
	Permit(trigger Trigger, toState State) StateConfiguration
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type transitionTable map[State]map[Trigger][]transition

type stateConfig struct {
	from  State
	table transitionTable
}

type stateMachineBuilder struct {
	table transitionTable
}

type stateMachine struct {
	current State
	table   transitionTable
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{table: make(transitionTable)}
}

// Configure panics on unknown states; rules are wired at startup
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if terminalStates[state] {
		panic(fmt.Sprintf("terminal state %s cannot have transitions", state))
	}
	if _, ok := b.table[state]; !ok {
		b.table[state] = make(map[Trigger][]transition)
	}
	return &stateConfig{from: state, table: b.table}
}

// Build snapshots the rules so later Configure calls do not affect the machine
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	snapshot := make(transitionTable, len(b.table))
	for from, triggers := range b.table {
		copied := make(map[Trigger][]transition, len(triggers))
		for trigger, ts := range triggers {
			copied[trigger] = append([]transition(nil), ts...)
		}
		snapshot[from] = copied
	}

	return &stateMachine{current: initialState, table: snapshot}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.table[c.from][trigger] = append(c.table[c.from][trigger], transition{toState: toState, guard: guard})
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.table[m.current][trigger]) > 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	transitions := m.table[m.current][trigger]
	if len(transitions) == 0 {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.toState
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}
