package workflow

import "fmt"

// StateMachine tracks the current lifecycle state and validates transitions.
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed
	Fire(trigger Trigger) error

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}

type stateMachine struct {
	currentState State
	transitions  map[State]map[Trigger]State
}

// approvalTransitions is the full lifecycle: the pending state can be
// resolved either way, terminal states permit nothing.
var approvalTransitions = map[State]map[Trigger]State{
	StateInProgress: {
		TriggerApprove: StateApproved,
		TriggerDecline: StateDeclined,
	},
	StateApproved: {},
	StateDeclined: {},
}

// NewApprovalMachine creates a state machine positioned at the given state.
func NewApprovalMachine(initial State) (StateMachine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, initial)
	}
	return &stateMachine{
		currentState: initial,
		transitions:  approvalTransitions,
	}, nil
}

// State returns the current state.
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire returns true if the trigger is permitted in the current state.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.transitions[m.currentState][trigger]
	return ok
}

// Fire attempts to execute the trigger, transitioning to the new state if allowed.
func (m *stateMachine) Fire(trigger Trigger) error {
	next, ok := m.transitions[m.currentState][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.currentState)
	}
	m.currentState = next
	return nil
}

// PermittedTriggers returns all triggers that can be fired in the current state.
func (m *stateMachine) PermittedTriggers() []Trigger {
	permitted := m.transitions[m.currentState]
	triggers := make([]Trigger, 0, len(permitted))
	for trigger := range permitted {
		triggers = append(triggers, trigger)
	}
	return triggers
}
