package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	taskType      string
	logger        *slog.Logger
	now           func() time.Time
}

// WithCheckInterval sets how often the scheduler looks at the current hour slot
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSlotTaskType sets the task type enqueued for a due slot
func WithSlotTaskType(taskType string) SchedulerOption {
	return func(o *schedulerOptions) {
		if taskType != "" {
			o.taskType = taskType
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock overrides the time source used by ticks
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
