package queue_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

func TestNewEnqueuer(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	publisher, err := queue.NewPublisher(storage)
	require.NoError(t, err)

	_, err = queue.NewEnqueuer(nil, publisher)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	_, err = queue.NewEnqueuer(storage, nil)
	assert.ErrorIs(t, err, queue.ErrPublisherNil)
}

func TestEnqueuer_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("stores queued task and publishes created event", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		task, err := q.enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 7},
			queue.WithRequestedBy(7))
		require.NoError(t, err)

		assert.Equal(t, queue.TaskStatusQueued, task.Status)
		assert.Equal(t, queue.SourceAPI, task.Source)
		require.NotNil(t, task.RequestedBy)
		assert.Equal(t, int64(7), *task.RequestedBy)
		assert.JSONEq(t, `{"user_id":7}`, string(task.Payload))

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusQueued, stored.Status)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, queue.EventTaskCreated, events[0].EventType)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
		assert.Equal(t, "queued", payload["status"])
		assert.Equal(t, "sync.starred", payload["task_type"])
		assert.Equal(t, "api", payload["source"])
		assert.Equal(t, task.ID.String(), payload["task_id"])
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)

		_, err := q.enqueuer.Enqueue(context.Background(), "", map[string]any{})
		assert.ErrorIs(t, err, queue.ErrTaskTypeEmpty)

		_, err = q.enqueuer.Enqueue(context.Background(), "sync.all", nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)
	})

	t.Run("rejects duplicate dedup key", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		_, err := q.enqueuer.Enqueue(ctx, "brief.daily_slot", map[string]any{}, queue.WithDedupKey("k"))
		require.NoError(t, err)

		_, err = q.enqueuer.Enqueue(ctx, "brief.daily_slot", map[string]any{}, queue.WithDedupKey("k"))
		assert.ErrorIs(t, err, queue.ErrDuplicateTask)
	})
}

func TestEnqueuer_StartInline(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	ctx := context.Background()

	task, err := q.enqueuer.StartInline(ctx, "translate.release", map[string]any{"release_id": 1})
	require.NoError(t, err)
	assert.Equal(t, queue.TaskStatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)

	events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, queue.EventTaskCreated, events[0].EventType)
	assert.Equal(t, queue.EventTaskRunning, events[1].EventType)
	assert.JSONEq(t, `{"task_id":"`+task.ID.String()+`","status":"running"}`, string(events[1].Payload))

	// inline tasks are never handed to the worker loop
	_, err = q.storage.ClaimTask(ctx, task.CreatedAt)
	assert.ErrorIs(t, err, queue.ErrNoTaskToClaim)
}

func TestEnqueuer_Retry(t *testing.T) {
	t.Parallel()

	t.Run("copies a finished task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		original, err := q.enqueuer.Enqueue(ctx, "sync.releases", map[string]any{"user_id": 3})
		require.NoError(t, err)
		claimed, err := q.storage.ClaimTask(ctx, original.CreatedAt)
		require.NoError(t, err)
		msg := "boom"
		ok, err := q.storage.FinishTask(ctx, claimed.ID, queue.Finalization{
			Status: queue.TaskStatusFailed, ErrorMessage: &msg, FinishedAt: original.CreatedAt,
		})
		require.NoError(t, err)
		require.True(t, ok)

		admin := int64(99)
		retried, err := q.enqueuer.Retry(ctx, original.ID, &admin)
		require.NoError(t, err)

		assert.NotEqual(t, original.ID, retried.ID)
		assert.Equal(t, queue.TaskStatusQueued, retried.Status)
		assert.Equal(t, queue.SourceRetry, retried.Source)
		assert.Equal(t, "sync.releases", retried.TaskType)
		assert.JSONEq(t, string(original.Payload), string(retried.Payload))
		require.NotNil(t, retried.ParentTaskID)
		assert.Equal(t, original.ID, *retried.ParentTaskID)
		assert.Equal(t, admin, *retried.RequestedBy)

		stored, err := q.storage.GetTask(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusFailed, stored.Status)
	})

	t.Run("rejects unfinished task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)

		task, err := q.enqueuer.Enqueue(context.Background(), "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = q.enqueuer.Retry(context.Background(), task.ID, nil)
		assert.ErrorIs(t, err, queue.ErrNotRetryable)
		assert.EqualError(t, err, "only finished tasks can be retried")
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)

		_, err := q.enqueuer.Retry(context.Background(), uuid.New(), nil)
		assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	})
}

func TestEnqueuer_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("queued task is canceled immediately", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		task, err := q.enqueuer.Enqueue(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		status, err := q.enqueuer.Cancel(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCanceled, status)

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCanceled, stored.Status)
		assert.True(t, stored.CancelRequested)
		assert.NotNil(t, stored.FinishedAt)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, queue.EventTaskCanceled, events[1].EventType)
	})

	t.Run("running task gets a cancel request", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		task, err := q.enqueuer.StartInline(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		status, err := q.enqueuer.Cancel(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusRunning, status)

		requested, err := q.storage.IsCancelRequested(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, requested)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, queue.EventTaskCancelRequested, events[len(events)-1].EventType)
	})

	t.Run("finished task reports its status", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		task, err := q.enqueuer.Enqueue(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)
		_, err = q.enqueuer.Cancel(ctx, task.ID)
		require.NoError(t, err)

		status, err := q.enqueuer.Cancel(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCanceled, status)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Len(t, events, 2, "second cancel must not publish")
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)

		_, err := q.enqueuer.Cancel(context.Background(), uuid.New())
		assert.ErrorIs(t, err, queue.ErrTaskNotFound)
	})
}
