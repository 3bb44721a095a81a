package queue

import "fmt"

// Trigger names the lifecycle step that moves a task between statuses.
type Trigger string

const (
	TriggerClaim   Trigger = "claim"
	TriggerStart   Trigger = "start_inline"
	TriggerCancel  Trigger = "cancel"
	TriggerSucceed Trigger = "succeed"
	TriggerFail    Trigger = "fail"
)

// lifecycle is indexed as [from][trigger] -> to.
// Inline tasks are born running, so TriggerStart has no source status.
var lifecycle = map[TaskStatus]map[Trigger]TaskStatus{
	TaskStatusQueued: {
		TriggerClaim:  TaskStatusRunning,
		TriggerCancel: TaskStatusCanceled,
	},
	TaskStatusRunning: {
		TriggerSucceed: TaskStatusSucceeded,
		TriggerFail:    TaskStatusFailed,
		TriggerCancel:  TaskStatusCanceled,
	},
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From    TaskStatus
	Trigger Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition available from status '%s' for '%s'", e.From, e.Trigger)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Next returns the status reached by firing trigger from status from.
func Next(from TaskStatus, trigger Trigger) (TaskStatus, error) {
	to, ok := lifecycle[from][trigger]
	if !ok {
		return "", &TransitionError{From: from, Trigger: trigger}
	}
	return to, nil
}

// CanTransition reports whether any trigger moves a task from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, target := range lifecycle[from] {
		if target == to {
			return true
		}
	}
	return false
}

// triggerFor maps a terminal status to the trigger the worker fires to reach it.
func triggerFor(status TaskStatus) Trigger {
	switch status {
	case TaskStatusSucceeded:
		return TriggerSucceed
	case TaskStatusFailed:
		return TriggerFail
	default:
		return TriggerCancel
	}
}
