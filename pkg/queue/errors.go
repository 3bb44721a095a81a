package queue

import "errors"

// Common errors
var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrExecutorNil is returned when a worker is created without an executor
	ErrExecutorNil = errors.New("executor cannot be nil")

	// ErrPublisherNil is returned when a component requires a publisher and none is given
	ErrPublisherNil = errors.New("publisher cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrTaskTypeEmpty is returned when a task is submitted without a type
	ErrTaskTypeEmpty = errors.New("task type cannot be empty")

	// ErrTaskNotFound is returned when a task id is unknown
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotRetryable is returned when retrying a task that has not finished yet
	ErrNotRetryable = errors.New("only finished tasks can be retried")

	// ErrDuplicateTask is returned when a task with the same dedup key already exists
	ErrDuplicateTask = errors.New("task with the same dedup key already exists")

	// ErrNoTaskToClaim is returned by ClaimTask when nothing is queued
	ErrNoTaskToClaim = errors.New("no task available to claim")

	// ErrUnsupportedTaskType is returned by executors for unknown task types
	ErrUnsupportedTaskType = errors.New("unsupported task_type")

	// ErrInvalidPayload is returned by executors when a payload misses required fields
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrSlotNotFound is returned when an hour slot does not exist
	ErrSlotNotFound = errors.New("slot not found")

	// ErrInvalidHour is returned for hours outside 0..23
	ErrInvalidHour = errors.New("hour_utc must be 0..23")

	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrWorkerRunning is returned when starting a worker twice
	ErrWorkerRunning = errors.New("worker already started")

	// ErrWorkerNotRunning is returned when stopping a worker that was not started
	ErrWorkerNotRunning = errors.New("worker not started")
)
