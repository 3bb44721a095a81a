package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskline/pkg/logger"
)

// EnqueuerRepository defines the store operations used by task submission
type EnqueuerRepository interface {
	// CreateTask inserts a new task row. Returns ErrDuplicateTask when the dedup key is taken.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask loads a task by id. Returns ErrTaskNotFound for unknown ids.
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)

	// CancelQueuedTask moves a queued task to canceled. Reports false when the task was not queued.
	CancelQueuedTask(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// RequestCancel flags a running task for cooperative cancellation. Reports false when the task was not running.
	RequestCancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// Enqueuer creates tasks and emits their lifecycle events
type Enqueuer struct {
	repo      EnqueuerRepository
	publisher *Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, publisher *Publisher, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	if publisher == nil {
		return nil, ErrPublisherNil
	}

	options := &enqueuerOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:      repo,
		publisher: publisher,
		logger:    options.logger,
		now:       options.now,
	}, nil
}

// Enqueue stores a queued task for the worker loop to pick up.
func (e *Enqueuer) Enqueue(ctx context.Context, taskType string, payload any, opts ...TaskOption) (*Task, error) {
	task, err := e.buildTask(taskType, payload, TaskStatusQueued, opts)
	if err != nil {
		return nil, err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task %q: %w", taskType, err)
	}

	if _, err := e.publisher.Publish(ctx, task.ID, EventTaskCreated, createdEvent(task)); err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "task enqueued",
		logger.TaskID(task.ID),
		logger.TaskType(task.TaskType),
		slog.String("source", task.Source))

	return task, nil
}

// StartInline stores a task that is already running. The caller executes it
// with Worker.ExecuteInline; the worker loop never claims it.
func (e *Enqueuer) StartInline(ctx context.Context, taskType string, payload any, opts ...TaskOption) (*Task, error) {
	task, err := e.buildTask(taskType, payload, TaskStatusRunning, opts)
	if err != nil {
		return nil, err
	}
	startedAt := task.CreatedAt
	task.StartedAt = &startedAt

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create inline task %q: %w", taskType, err)
	}

	if _, err := e.publisher.Publish(ctx, task.ID, EventTaskCreated, createdEvent(task)); err != nil {
		return nil, err
	}
	if _, err := e.publisher.Publish(ctx, task.ID, EventTaskRunning, statusEvent(task.ID, TaskStatusRunning)); err != nil {
		return nil, err
	}

	return task, nil
}

// Retry enqueues a copy of a finished task. The original row is left untouched.
func (e *Enqueuer) Retry(ctx context.Context, taskID uuid.UUID, requestedBy *int64) (*Task, error) {
	original, err := e.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !original.Status.IsTerminal() {
		return nil, ErrNotRetryable
	}

	opts := []TaskOption{WithSource(SourceRetry), WithParentTask(original.ID)}
	if requestedBy != nil {
		opts = append(opts, WithRequestedBy(*requestedBy))
	}

	return e.Enqueue(ctx, original.TaskType, original.Payload, opts...)
}

// Cancel stops a queued task immediately or asks a running one to stop at its
// next checkpoint. It returns the status the task is in after the call.
func (e *Enqueuer) Cancel(ctx context.Context, taskID uuid.UUID) (TaskStatus, error) {
	now := e.now().UTC()

	canceled, err := e.repo.CancelQueuedTask(ctx, taskID, now)
	if err != nil {
		return "", fmt.Errorf("failed to cancel queued task %s: %w", taskID, err)
	}
	if canceled {
		if _, err := e.publisher.Publish(ctx, taskID, EventTaskCanceled, statusEvent(taskID, TaskStatusCanceled)); err != nil {
			return "", err
		}
		return TaskStatusCanceled, nil
	}

	requested, err := e.repo.RequestCancel(ctx, taskID, now)
	if err != nil {
		return "", fmt.Errorf("failed to request cancel for task %s: %w", taskID, err)
	}
	if requested {
		if _, err := e.publisher.Publish(ctx, taskID, EventTaskCancelRequested, statusEvent(taskID, TaskStatusRunning)); err != nil {
			return "", err
		}
		return TaskStatusRunning, nil
	}

	task, err := e.repo.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return "", ErrTaskNotFound
		}
		return "", fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	return task.Status, nil
}

func (e *Enqueuer) buildTask(taskType string, payload any, status TaskStatus, opts []TaskOption) (*Task, error) {
	if taskType == "" {
		return nil, ErrTaskTypeEmpty
	}
	if payload == nil {
		return nil, ErrPayloadNil
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	options := &taskOptions{source: SourceAPI}
	for _, opt := range opts {
		opt(options)
	}

	now := e.now().UTC()
	return &Task{
		ID:           uuid.New(),
		TaskType:     taskType,
		Status:       status,
		Source:       options.source,
		RequestedBy:  options.requestedBy,
		ParentTaskID: options.parentTaskID,
		DedupKey:     options.dedupKey,
		Payload:      raw,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func createdEvent(task *Task) map[string]any {
	return map[string]any{
		"task_id":   task.ID,
		"task_type": task.TaskType,
		"status":    task.Status,
		"source":    task.Source,
	}
}

func statusEvent(taskID uuid.UUID, status TaskStatus) map[string]any {
	return map[string]any{
		"task_id": taskID,
		"status":  status,
	}
}
