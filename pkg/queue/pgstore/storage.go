package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/taskline/pkg/pg"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

const (
	tasksTable  = "job_tasks"
	eventsTable = "job_task_events"
	slotsTable  = "daily_brief_hour_slots"

	dedupConstraint = "uq_job_tasks_dedup_key"

	// eventLogLockKey identifies the advisory lock held while appending events.
	eventLogLockKey int64 = 0x6a6f625f6576
)

var (
	_ queue.EnqueuerRepository  = (*Storage)(nil)
	_ queue.WorkerRepository    = (*Storage)(nil)
	_ queue.EventRepository     = (*Storage)(nil)
	_ queue.StreamRepository    = (*Storage)(nil)
	_ queue.SchedulerRepository = (*Storage)(nil)
	_ queue.InspectorRepository = (*Storage)(nil)
)

// Storage implements every queue repository on a pgx connection pool.
type Storage struct {
	pool *pgxpool.Pool
}

// New creates a storage backed by pool
func New(pool *pgxpool.Pool) (*Storage, error) {
	if pool == nil {
		return nil, queue.ErrRepositoryNil
	}
	return &Storage{pool: pool}, nil
}

// CreateTask implements queue.EnqueuerRepository
func (s *Storage) CreateTask(ctx context.Context, task *queue.Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO `+tasksTable+` (
    id, task_type, status, source, requested_by, parent_task_id, dedup_key,
    payload_json, result_json, error_message, cancel_requested,
    created_at, started_at, finished_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		task.ID, task.TaskType, string(task.Status), task.Source, task.RequestedBy, task.ParentTaskID, task.DedupKey,
		jsonOrEmpty(task.Payload), nullableJSON(task.Result), task.ErrorMessage, task.CancelRequested,
		task.CreatedAt, task.StartedAt, task.FinishedAt, task.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) && pg.ConstraintName(err) == dedupConstraint {
			return queue.ErrDuplicateTask
		}
		return fmt.Errorf("failed to create task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask implements queue.EnqueuerRepository and queue.InspectorRepository
func (s *Storage) GetTask(ctx context.Context, id uuid.UUID) (*queue.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM `+tasksTable+` WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return task, nil
}

// CancelQueuedTask implements queue.EnqueuerRepository
func (s *Storage) CancelQueuedTask(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE `+tasksTable+`
SET status = $2, cancel_requested = TRUE, finished_at = $3, updated_at = $3
WHERE id = $1 AND status = $4`,
		id, string(queue.TaskStatusCanceled), at, string(queue.TaskStatusQueued))
	if err != nil {
		return false, fmt.Errorf("failed to cancel queued task %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequestCancel implements queue.EnqueuerRepository
func (s *Storage) RequestCancel(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE `+tasksTable+`
SET cancel_requested = TRUE, updated_at = $2
WHERE id = $1 AND status = $3`,
		id, at, string(queue.TaskStatusRunning))
	if err != nil {
		return false, fmt.Errorf("failed to request cancel of task %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimTask implements queue.WorkerRepository.
// The oldest queued row is locked, moved to running and returned in one transaction.
func (s *Storage) ClaimTask(ctx context.Context, at time.Time) (*queue.Task, error) {
	next, err := queue.Next(queue.TaskStatusQueued, queue.TriggerClaim)
	if err != nil {
		return nil, err
	}

	var claimed *queue.Task
	err = pg.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
SELECT id FROM `+tasksTable+`
WHERE status = $1
ORDER BY created_at ASC, id ASC
LIMIT 1
FOR UPDATE SKIP LOCKED`, string(queue.TaskStatusQueued)).Scan(&id)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
UPDATE `+tasksTable+`
SET status = $2, started_at = $3, updated_at = $3
WHERE id = $1 AND status = $4
RETURNING `+taskColumns,
			id, string(next), at, string(queue.TaskStatusQueued))
		claimed, err = scanTask(row)
		return err
	})
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, queue.ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return claimed, nil
}

// FinishTask implements queue.WorkerRepository
func (s *Storage) FinishTask(ctx context.Context, id uuid.UUID, fin queue.Finalization) (bool, error) {
	if !queue.CanTransition(queue.TaskStatusRunning, fin.Status) {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE `+tasksTable+`
SET status = $2, result_json = $3, error_message = $4, finished_at = $5, updated_at = $5
WHERE id = $1 AND status = $6`,
		id, string(fin.Status), nullableJSON(fin.Result), fin.ErrorMessage, fin.FinishedAt, string(queue.TaskStatusRunning))
	if err != nil {
		return false, fmt.Errorf("failed to finish task %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	if _, err := s.GetTaskStatus(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// IsCancelRequested implements queue.WorkerRepository
func (s *Storage) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := s.pool.QueryRow(ctx, `SELECT cancel_requested FROM `+tasksTable+` WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return false, queue.ErrTaskNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag of task %s: %w", id, err)
	}
	return requested, nil
}

// GetTaskStatus implements queue.StreamRepository
func (s *Storage) GetTaskStatus(ctx context.Context, taskID uuid.UUID) (queue.TaskStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM `+tasksTable+` WHERE id = $1`, taskID).Scan(&status)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", queue.ErrTaskNotFound
		}
		return "", fmt.Errorf("failed to read status of task %s: %w", taskID, err)
	}
	return queue.TaskStatus(status), nil
}
