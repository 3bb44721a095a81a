package queue

import (
	"log/slog"
	"time"
)

// WorkerOption is a functional option for configuring a worker
type WorkerOption func(*workerOptions)

type workerOptions struct {
	idleInterval time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// WithIdleInterval sets how long the worker sleeps when nothing is queued
func WithIdleInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.idleInterval = d
		}
	}
}

// WithErrorBackoff sets how long the worker sleeps after a store error
func WithErrorBackoff(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.errorBackoff = d
		}
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkerClock overrides the time source
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(o *workerOptions) {
		if now != nil {
			o.now = now
		}
	}
}
