package jobs

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/taskline/handler"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

var (
	ErrInspectorNil = errors.New("jobs: inspector is nil")
	ErrEnqueuerNil  = errors.New("jobs: enqueuer is nil")
	ErrStreamerNil  = errors.New("jobs: streamer is nil")
)

// ErrInvalidTaskState is returned when an operation does not fit the task status
var ErrInvalidTaskState = handler.NewHTTPError(http.StatusConflict, "invalid_task_state")

// MapError translates queue errors into HTTP errors.
func MapError(err error) (handler.HTTPError, bool) {
	switch {
	case errors.Is(err, queue.ErrTaskNotFound):
		return handler.ErrNotFound.WithMessage("task not found"), true
	case errors.Is(err, queue.ErrSlotNotFound):
		return handler.ErrNotFound.WithMessage("slot not found"), true
	case errors.Is(err, queue.ErrNotRetryable):
		return ErrInvalidTaskState.WithMessage(queue.ErrNotRetryable.Error()), true
	case errors.Is(err, queue.ErrInvalidHour):
		return handler.ErrBadRequest.WithMessage(queue.ErrInvalidHour.Error()), true
	}
	return handler.HTTPError{}, false
}
