package queue

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EnqueuerOption is a functional option for configuring an Enqueuer
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	logger *slog.Logger
	now    func() time.Time
}

// WithEnqueuerLogger sets the logger for the enqueuer
func WithEnqueuerLogger(logger *slog.Logger) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEnqueuerClock overrides the time source used for timestamps
func WithEnqueuerClock(now func() time.Time) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// TaskOption is a functional option for Enqueue and StartInline
type TaskOption func(*taskOptions)

type taskOptions struct {
	source       string
	requestedBy  *int64
	parentTaskID *uuid.UUID
	dedupKey     *string
}

// WithSource records where the task came from. Defaults to SourceAPI.
func WithSource(source string) TaskOption {
	return func(o *taskOptions) {
		if source != "" {
			o.source = source
		}
	}
}

// WithRequestedBy records the user who asked for the task
func WithRequestedBy(userID int64) TaskOption {
	return func(o *taskOptions) {
		o.requestedBy = &userID
	}
}

// WithParentTask links the task to the one it retries
func WithParentTask(id uuid.UUID) TaskOption {
	return func(o *taskOptions) {
		o.parentTaskID = &id
	}
}

// WithDedupKey rejects the task with ErrDuplicateTask if another task holds the same key
func WithDedupKey(key string) TaskOption {
	return func(o *taskOptions) {
		if key != "" {
			o.dedupKey = &key
		}
	}
}
