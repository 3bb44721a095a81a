package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

// MockWorkerRepository is a mock implementation of WorkerRepository
type MockWorkerRepository struct {
	mock.Mock
}

func (m *MockWorkerRepository) ClaimTask(ctx context.Context, at time.Time) (*queue.Task, error) {
	args := m.Called(ctx, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Task), args.Error(1)
}

func (m *MockWorkerRepository) FinishTask(ctx context.Context, id uuid.UUID, fin queue.Finalization) (bool, error) {
	args := m.Called(ctx, id, fin)
	return args.Bool(0), args.Error(1)
}

func (m *MockWorkerRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// flakyStorage fails the first failFinish FinishTask calls and the first
// failCompleted task.completed appends with a store error.
type flakyStorage struct {
	*queue.MemoryStorage
	failFinish    atomic.Int32
	failCompleted atomic.Int32
	finishCalls   atomic.Int32
}

func (s *flakyStorage) FinishTask(ctx context.Context, id uuid.UUID, fin queue.Finalization) (bool, error) {
	s.finishCalls.Add(1)
	if s.failFinish.Add(-1) >= 0 {
		return false, errors.New("connection reset by peer")
	}
	return s.MemoryStorage.FinishTask(ctx, id, fin)
}

func (s *flakyStorage) AppendEvent(ctx context.Context, ev *queue.TaskEvent) error {
	if ev.EventType == queue.EventTaskCompleted && s.failCompleted.Add(-1) >= 0 {
		return errors.New("connection reset by peer")
	}
	return s.MemoryStorage.AppendEvent(ctx, ev)
}

func okExecutor(result string) queue.ExecutorFunc {
	return func(ctx context.Context, task *queue.Task, ctl queue.TaskControl) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

func TestNewWorker(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)

	_, err := queue.NewWorker(nil, okExecutor(`{}`), q.publisher)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	_, err = queue.NewWorker(q.storage, nil, q.publisher)
	assert.ErrorIs(t, err, queue.ErrExecutorNil)

	_, err = queue.NewWorker(q.storage, okExecutor(`{}`), nil)
	assert.ErrorIs(t, err, queue.ErrPublisherNil)
}

func TestWorker_ProcessNext(t *testing.T) {
	t.Parallel()

	t.Run("nothing queued", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		w := q.newWorker(t, okExecutor(`{}`))

		processed, err := w.ProcessNext(context.Background())
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		var seen *queue.Task
		w := q.newWorker(t, queue.ExecutorFunc(func(ctx context.Context, task *queue.Task, ctl queue.TaskControl) (json.RawMessage, error) {
			seen = task
			require.NoError(t, ctl.Progress(ctx, map[string]any{"stage": "half"}))
			return json.RawMessage(`{"count":2}`), nil
		}))

		task, err := q.enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		require.NotNil(t, seen)
		assert.Equal(t, queue.TaskStatusRunning, seen.Status)

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusSucceeded, stored.Status)
		assert.JSONEq(t, `{"count":2}`, string(stored.Result))
		assert.Nil(t, stored.ErrorMessage)
		assert.NotNil(t, stored.StartedAt)
		assert.NotNil(t, stored.FinishedAt)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{
			queue.EventTaskCreated, queue.EventTaskRunning, queue.EventTaskProgress, queue.EventTaskCompleted,
		}, eventTypes(events))
		assert.JSONEq(t, `{"task_id":"`+task.ID.String()+`","status":"succeeded"}`, string(events[3].Payload))
	})

	t.Run("executor error fails the task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		w := q.newWorker(t, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
			return nil, errors.New("github unavailable")
		}))

		task, err := q.enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusFailed, stored.Status)
		require.NotNil(t, stored.ErrorMessage)
		assert.Equal(t, "github unavailable", *stored.ErrorMessage)
		assert.Nil(t, stored.Result)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		last := events[len(events)-1]
		assert.Equal(t, queue.EventTaskCompleted, last.EventType)
		assert.JSONEq(t, `{"task_id":"`+task.ID.String()+`","status":"failed","error":"github unavailable"}`, string(last.Payload))
	})

	t.Run("executor panic fails the task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		w := q.newWorker(t, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
			panic("boom")
		}))

		task, err := q.enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusFailed, stored.Status)
		assert.Equal(t, "panic in executor: boom", *stored.ErrorMessage)
	})

	t.Run("canceled queued task never reaches the executor", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		var calls atomic.Int32
		w := q.newWorker(t, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
			calls.Add(1)
			return nil, nil
		}))

		task, err := q.enqueuer.Enqueue(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)
		_, err = q.enqueuer.Cancel(ctx, task.ID)
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.False(t, processed)
		assert.Zero(t, calls.Load())
	})

	t.Run("cancel requested during execution wins over the result", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		w := q.newWorker(t, queue.ExecutorFunc(func(ctx context.Context, task *queue.Task, ctl queue.TaskControl) (json.RawMessage, error) {
			status, err := q.enqueuer.Cancel(ctx, task.ID)
			require.NoError(t, err)
			require.Equal(t, queue.TaskStatusRunning, status)

			requested, err := ctl.CancelRequested(ctx)
			require.NoError(t, err)
			require.True(t, requested)
			return json.RawMessage(`{"partial":true}`), nil
		}))

		task, err := q.enqueuer.Enqueue(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)

		stored, err := q.storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusCanceled, stored.Status)
		assert.Nil(t, stored.Result)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{
			queue.EventTaskCreated, queue.EventTaskRunning, queue.EventTaskCancelRequested, queue.EventTaskCompleted,
		}, eventTypes(events))
	})

	t.Run("claimed task with cancel flag is finalized without executing", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()

		task, err := q.enqueuer.StartInline(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)
		task.CancelRequested = true

		repo := new(MockWorkerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ClaimTask", mock.Anything, mock.Anything).Return(task, nil).Once()
		repo.On("FinishTask", mock.Anything, task.ID, mock.MatchedBy(func(fin queue.Finalization) bool {
			return fin.Status == queue.TaskStatusCanceled && fin.Result == nil && fin.ErrorMessage == nil
		})).Return(true, nil).Once()

		var calls atomic.Int32
		w, err := queue.NewWorker(repo, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
			calls.Add(1)
			return nil, nil
		}), q.publisher, queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Zero(t, calls.Load())
	})

	t.Run("transient finalize error is retried", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		storage := &flakyStorage{MemoryStorage: queue.NewMemoryStorage()}
		storage.failFinish.Store(2)
		publisher, err := queue.NewPublisher(storage, queue.WithPublisherLogger(discardLogger()))
		require.NoError(t, err)
		enqueuer, err := queue.NewEnqueuer(storage, publisher, queue.WithEnqueuerLogger(discardLogger()))
		require.NoError(t, err)

		var calls atomic.Int32
		w, err := queue.NewWorker(storage, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{"count":1}`), nil
		}), publisher, queue.WithErrorBackoff(time.Millisecond), queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)

		task, err := enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, processed)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, int32(3), storage.finishCalls.Load())

		stored, err := storage.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusSucceeded, stored.Status)
		assert.JSONEq(t, `{"count":1}`, string(stored.Result))

		events, err := storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{
			queue.EventTaskCreated, queue.EventTaskRunning, queue.EventTaskCompleted,
		}, eventTypes(events))
	})

	t.Run("transient completion publish error is retried", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		storage := &flakyStorage{MemoryStorage: queue.NewMemoryStorage()}
		storage.failCompleted.Store(1)
		publisher, err := queue.NewPublisher(storage, queue.WithPublisherLogger(discardLogger()))
		require.NoError(t, err)
		enqueuer, err := queue.NewEnqueuer(storage, publisher, queue.WithEnqueuerLogger(discardLogger()))
		require.NoError(t, err)

		w, err := queue.NewWorker(storage, okExecutor(`{}`), publisher,
			queue.WithErrorBackoff(time.Millisecond), queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)

		task, err := enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = w.ProcessNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), storage.finishCalls.Load())

		events, err := storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{
			queue.EventTaskCreated, queue.EventTaskRunning, queue.EventTaskCompleted,
		}, eventTypes(events))
	})

	t.Run("finalize retries stop with the loop context", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		task, err := q.enqueuer.StartInline(ctx, "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		repo := new(MockWorkerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ClaimTask", mock.Anything, mock.Anything).Return(task, nil).Once()
		repo.On("IsCancelRequested", mock.Anything, task.ID).Return(false, nil).Once()
		repo.On("FinishTask", mock.Anything, task.ID, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(false, errors.New("connection refused")).Once()

		w, err := queue.NewWorker(repo, okExecutor(`{}`), q.publisher,
			queue.WithErrorBackoff(time.Hour), queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)

		processed, err := w.ProcessNext(ctx)
		assert.True(t, processed)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("claim store error", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)

		repo := new(MockWorkerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ClaimTask", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused")).Once()

		w, err := queue.NewWorker(repo, okExecutor(`{}`), q.publisher, queue.WithWorkerLogger(discardLogger()))
		require.NoError(t, err)

		processed, err := w.ProcessNext(context.Background())
		assert.Error(t, err)
		assert.False(t, processed)
	})
}

func TestWorker_ExecuteInline(t *testing.T) {
	t.Parallel()

	t.Run("runs an inline task", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		ctx := context.Background()
		w := q.newWorker(t, okExecutor(`{"translated":1}`))

		task, err := q.enqueuer.StartInline(ctx, "translate.release", map[string]any{"release_id": 5})
		require.NoError(t, err)

		status, err := w.ExecuteInline(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, queue.TaskStatusSucceeded, status)

		events, err := q.storage.ListTaskEvents(ctx, task.ID, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{
			queue.EventTaskCreated, queue.EventTaskRunning, queue.EventTaskCompleted,
		}, eventTypes(events))
	})

	t.Run("rejects tasks that are not running", func(t *testing.T) {
		t.Parallel()
		q := newTestQueue(t)
		w := q.newWorker(t, okExecutor(`{}`))

		task, err := q.enqueuer.Enqueue(context.Background(), "sync.all", map[string]any{"user_id": 1})
		require.NoError(t, err)

		_, err = w.ExecuteInline(context.Background(), task)
		assert.ErrorIs(t, err, queue.ErrInvalidTransition)
	})
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	w := q.newWorker(t, okExecutor(`{}`), queue.WithIdleInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotRunning)

	require.NoError(t, w.Start(ctx))
	assert.ErrorIs(t, w.Start(ctx), queue.ErrWorkerRunning)

	tasks := make([]uuid.UUID, 0, 3)
	for range 3 {
		task, err := q.enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
		require.NoError(t, err)
		tasks = append(tasks, task.ID)
	}

	require.Eventually(t, func() bool {
		for _, id := range tasks {
			task, err := q.storage.GetTask(ctx, id)
			if err != nil || task.Status != queue.TaskStatusSucceeded {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
}

func TestWorker_Run(t *testing.T) {
	t.Parallel()
	q := newTestQueue(t)
	w := q.newWorker(t, okExecutor(`{}`), queue.WithIdleInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx)() }()

	task, err := q.enqueuer.Enqueue(context.Background(), "sync.starred", map[string]any{"user_id": 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := q.storage.GetTask(context.Background(), task.ID)
		return err == nil && stored.Status == queue.TaskStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_RunRetriesFinalize(t *testing.T) {
	t.Parallel()

	storage := &flakyStorage{MemoryStorage: queue.NewMemoryStorage()}
	storage.failFinish.Store(1)
	publisher, err := queue.NewPublisher(storage, queue.WithPublisherLogger(discardLogger()))
	require.NoError(t, err)
	enqueuer, err := queue.NewEnqueuer(storage, publisher, queue.WithEnqueuerLogger(discardLogger()))
	require.NoError(t, err)

	var calls atomic.Int32
	w, err := queue.NewWorker(storage, queue.ExecutorFunc(func(context.Context, *queue.Task, queue.TaskControl) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(`{}`), nil
	}), publisher,
		queue.WithIdleInterval(5*time.Millisecond),
		queue.WithErrorBackoff(5*time.Millisecond),
		queue.WithWorkerLogger(discardLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, err := enqueuer.Enqueue(ctx, "sync.starred", map[string]any{"user_id": 1})
	require.NoError(t, err)

	require.NoError(t, w.Start(ctx))
	require.Eventually(t, func() bool {
		stored, err := storage.GetTask(ctx, task.ID)
		return err == nil && stored.Status == queue.TaskStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Equal(t, int32(1), calls.Load())
	events, err := storage.ListTaskEvents(ctx, task.ID, 0, 10)
	require.NoError(t, err)
	assert.Contains(t, eventTypes(events), queue.EventTaskCompleted)
}

func eventTypes(events []queue.TaskEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}
