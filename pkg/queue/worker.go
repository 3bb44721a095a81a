package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskline/pkg/logger"
)

// WorkerRepository defines the store operations of the worker loop
type WorkerRepository interface {
	// ClaimTask atomically moves the oldest queued task to running and returns it.
	// Returns ErrNoTaskToClaim when nothing is queued or another claimer won.
	ClaimTask(ctx context.Context, at time.Time) (*Task, error)

	// FinishTask writes the terminal state of a running task.
	// Reports false when the task was no longer running.
	FinishTask(ctx context.Context, id uuid.UUID, fin Finalization) (bool, error)

	// IsCancelRequested reads the cancellation flag of a task
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

// TaskControl is handed to executors for cooperative cancellation and progress reporting
type TaskControl interface {
	TaskID() uuid.UUID
	// CancelRequested reports whether someone asked the task to stop
	CancelRequested(ctx context.Context) (bool, error)
	// Progress appends a task.progress event
	Progress(ctx context.Context, payload any) error
}

// Executor runs a claimed task and returns its JSON result
type Executor interface {
	Execute(ctx context.Context, task *Task, ctl TaskControl) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, task *Task, ctl TaskControl) (json.RawMessage, error)

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, task *Task, ctl TaskControl) (json.RawMessage, error) {
	return f(ctx, task, ctl)
}

// Worker is the single execution lane. It claims one task at a time and runs it to completion.
type Worker struct {
	repo      WorkerRepository
	executor  Executor
	publisher *Publisher

	idleInterval time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new worker
func NewWorker(repo WorkerRepository, executor Executor, publisher *Publisher, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if executor == nil {
		return nil, ErrExecutorNil
	}
	if publisher == nil {
		return nil, ErrPublisherNil
	}

	options := &workerOptions{
		idleInterval: DefaultIdleInterval,
		errorBackoff: DefaultErrorBackoff,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Worker{
		repo:         repo,
		executor:     executor,
		publisher:    publisher,
		idleInterval: options.idleInterval,
		errorBackoff: options.errorBackoff,
		logger:       options.logger,
		now:          options.now,
	}, nil
}

// Start begins processing tasks in the background
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(loopCtx, w.done)

	w.logger.Info("worker started",
		slog.Duration("idle_interval", w.idleInterval),
		slog.Duration("error_backoff", w.errorBackoff))

	return nil
}

// Stop signals the loop to exit and waits for the current task to finish
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotRunning
	}
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("worker stopping, waiting for the current task to finish")
	<-done
	w.logger.Info("worker stopped")

	return nil
}

// Run starts the worker and returns a function suitable for errgroup
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return w.Stop()
	}
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		switch {
		case err != nil:
			w.logger.Error("worker loop error", logger.Error(err))
			sleepContext(ctx, w.errorBackoff)
		case !processed:
			sleepContext(ctx, w.idleInterval)
		}
	}
}

// ProcessNext claims and runs a single task. It reports false when nothing was queued.
//
// Once a task is claimed the only copy of its outcome lives in this call, and the
// claim query never returns running rows again. A store error while writing the
// outcome is therefore retried here until it lands or ctx is done.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim task: %w", err)
	}

	// The running task finishes even when the loop is asked to stop.
	execCtx := context.WithoutCancel(ctx)

	w.logger.Debug("claimed task", logger.TaskID(task.ID), logger.TaskType(task.TaskType))

	if _, err := w.publisher.Publish(execCtx, task.ID, EventTaskRunning, statusEvent(task.ID, TaskStatusRunning)); err != nil {
		w.logger.Error("failed to publish running event",
			logger.TaskID(task.ID),
			logger.EventType(EventTaskRunning),
			logger.Error(err))
	}

	if task.CancelRequested {
		_, err := w.finalize(execCtx, ctx, task, Finalization{Status: TaskStatusCanceled}, 0)
		return true, err
	}

	_, err = w.execute(execCtx, ctx, task)
	return true, err
}

// ExecuteInline runs a task created by Enqueuer.StartInline on the caller's goroutine
// and returns its terminal status.
func (w *Worker) ExecuteInline(ctx context.Context, task *Task) (TaskStatus, error) {
	if task == nil {
		return "", ErrTaskNotFound
	}
	if task.Status != TaskStatusRunning {
		return "", &TransitionError{From: task.Status, Trigger: TriggerStart}
	}
	return w.execute(ctx, ctx, task)
}

// execute runs the task on ctx. stop bounds how long a failed outcome write is retried.
func (w *Worker) execute(ctx, stop context.Context, task *Task) (TaskStatus, error) {
	start := w.now()
	ctl := &taskControl{id: task.ID, repo: w.repo, publisher: w.publisher}

	result, execErr := w.safeExecute(ctx, task, ctl)

	cancelRequested, err := w.repo.IsCancelRequested(ctx, task.ID)
	if err != nil {
		w.logger.Warn("failed to re-check cancellation flag",
			logger.TaskID(task.ID),
			logger.Error(err))
	}

	fin := Finalization{Status: TaskStatusSucceeded, Result: result}
	switch {
	case cancelRequested:
		fin = Finalization{Status: TaskStatusCanceled}
	case execErr != nil:
		msg := execErr.Error()
		fin = Finalization{Status: TaskStatusFailed, ErrorMessage: &msg}
	}

	return w.finalize(ctx, stop, task, fin, w.now().Sub(start))
}

func (w *Worker) safeExecute(ctx context.Context, task *Task, ctl TaskControl) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in executor: %v", r)
			w.logger.Error("executor panicked",
				logger.TaskID(task.ID),
				logger.TaskType(task.TaskType),
				slog.Any("panic", r))
		}
	}()

	return w.executor.Execute(ctx, task, ctl)
}

// finalize writes the terminal state and then the task.completed event.
// Each step is retried on its own so a publish failure never rewrites the row.
func (w *Worker) finalize(ctx, stop context.Context, task *Task, fin Finalization, duration time.Duration) (TaskStatus, error) {
	if _, err := Next(TaskStatusRunning, triggerFor(fin.Status)); err != nil {
		return "", err
	}
	fin.FinishedAt = w.now().UTC()

	var finished bool
	err := w.retry(stop, task, fin.Status, func() error {
		ok, err := w.repo.FinishTask(ctx, task.ID, fin)
		if err != nil {
			return fmt.Errorf("failed to finalize task %s as %s: %w", task.ID, fin.Status, err)
		}
		finished = ok
		return nil
	})
	if err != nil {
		return "", err
	}
	if !finished {
		w.logger.Warn("task was finalized elsewhere",
			logger.TaskID(task.ID),
			logger.TaskStatus(fin.Status))
		return fin.Status, nil
	}

	payload := statusEvent(task.ID, fin.Status)
	if fin.ErrorMessage != nil {
		payload["error"] = *fin.ErrorMessage
	}
	err = w.retry(stop, task, fin.Status, func() error {
		_, err := w.publisher.Publish(ctx, task.ID, EventTaskCompleted, payload)
		return err
	})
	if err != nil {
		return fin.Status, err
	}

	attrs := []any{
		logger.TaskID(task.ID),
		logger.TaskType(task.TaskType),
		logger.TaskStatus(fin.Status),
		logger.Duration(duration),
	}
	if fin.ErrorMessage != nil {
		w.logger.Error("task failed", append(attrs, slog.String("error", *fin.ErrorMessage))...)
	} else {
		w.logger.Info("task finished", attrs...)
	}

	return fin.Status, nil
}

// retry calls op until it succeeds, backing off errorBackoff between attempts.
// It gives up with the last error once stop is done. FinishTask only matches a
// running row, so repeating a write that may have landed is harmless.
func (w *Worker) retry(stop context.Context, task *Task, status TaskStatus, op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		w.logger.Error("failed to record task outcome, retrying",
			logger.TaskID(task.ID),
			logger.TaskStatus(status),
			slog.Int("attempt", attempt),
			logger.Error(err))

		sleepContext(stop, w.errorBackoff)
		if stop.Err() != nil {
			return err
		}
	}
}

type taskControl struct {
	id        uuid.UUID
	repo      WorkerRepository
	publisher *Publisher
}

func (c *taskControl) TaskID() uuid.UUID { return c.id }

func (c *taskControl) CancelRequested(ctx context.Context) (bool, error) {
	return c.repo.IsCancelRequested(ctx, c.id)
}

func (c *taskControl) Progress(ctx context.Context, payload any) error {
	_, err := c.publisher.Publish(ctx, c.id, EventTaskProgress, payload)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
