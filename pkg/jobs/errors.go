package jobs

import (
	"errors"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// ErrCollaboratorUnavailable is returned when a task needs a collaborator the executor was built without
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// PayloadError describes a missing or mistyped payload field.
// It matches queue.ErrInvalidPayload with errors.Is.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	switch e.Reason {
	case reasonIntArray:
		return "payload field " + e.Field + " must be integer array"
	default:
		return "payload missing " + e.Reason + " field: " + e.Field
	}
}

func (e *PayloadError) Unwrap() error {
	return queue.ErrInvalidPayload
}

const (
	reasonInteger  = "integer"
	reasonString   = "string"
	reasonArray    = "array"
	reasonIntArray = "integer array"
)
