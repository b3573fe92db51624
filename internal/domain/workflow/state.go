package workflow

import "github.com/kaladeofin/invoice-approvals/internal/domain/entity"

// State is a workflow state in the approval lifecycle. States map 1:1 onto
// persisted approval statuses.
type State string

const (
	StateInProgress State = State(entity.StatusInProgress)
	StateApproved   State = State(entity.StatusApproved)
	StateDeclined   State = State(entity.StatusDeclined)
)

var validStates = map[State]bool{
	StateInProgress: true,
	StateApproved:   true,
	StateDeclined:   true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateDeclined: true,
}

// IsTerminal returns true if no further transitions are allowed from the state.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if the state is a valid lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Status converts the state back to the persisted status value.
func (s State) Status() entity.Status {
	return entity.Status(s)
}
