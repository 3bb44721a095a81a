package jobs

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Submit enqueues cmd for the worker loop.
func Submit(ctx context.Context, enqueuer *queue.Enqueuer, cmd Command, opts ...queue.TaskOption) (*queue.Task, error) {
	if cmd == nil {
		return nil, queue.ErrPayloadNil
	}
	return enqueuer.Enqueue(ctx, cmd.TaskType(), cmd, opts...)
}

// RunInline records cmd as a running task and executes it on the caller's
// goroutine, bypassing the queue. It returns the final task status.
func RunInline(ctx context.Context, enqueuer *queue.Enqueuer, worker *queue.Worker, cmd Command, opts ...queue.TaskOption) (*queue.Task, queue.TaskStatus, error) {
	if cmd == nil {
		return nil, "", queue.ErrPayloadNil
	}

	task, err := enqueuer.StartInline(ctx, cmd.TaskType(), cmd, opts...)
	if err != nil {
		return nil, "", err
	}

	status, err := worker.ExecuteInline(ctx, task)
	if err != nil {
		return task, status, fmt.Errorf("failed to execute inline task %s: %w", task.ID, err)
	}
	return task, status, nil
}
