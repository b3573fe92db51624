package workflow

// Trigger is an action that can cause a state transition.
type Trigger string

const (
	TriggerApprove Trigger = "approve"
	TriggerDecline Trigger = "decline"
)

// ParseTrigger maps a submitted action string to a trigger. The bool is
// false for anything other than the two decision actions.
func ParseTrigger(action string) (Trigger, bool) {
	switch Trigger(action) {
	case TriggerApprove:
		return TriggerApprove, true
	case TriggerDecline:
		return TriggerDecline, true
	default:
		return "", false
	}
}

// String returns the string representation of the trigger.
func (t Trigger) String() string {
	return string(t)
}
