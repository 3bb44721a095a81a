// Package queue provides a persisted, single-lane background task queue with an
// append-only event log, live event streaming and an hourly slot scheduler.
//
// The package is organised around a handful of components that only talk to
// each other through the store:
//
//   - Enqueuer: creates queued or inline tasks, retries finished ones and cancels
//   - Worker: claims the oldest queued task and runs it through an Executor
//   - Publisher: the only write path into the event log
//   - Streamer: follows the event log for one task or for all tasks
//   - Scheduler: dispatches one fan-out task per enabled hour slot and hour bucket
//   - Inspector: admin read model over tasks, events and slots
//
// Persistence is hidden behind small repository interfaces. MemoryStorage
// implements all of them for tests and local runs; the pgstore subpackage
// implements them on PostgreSQL.
//
// # Task lifecycle
//
//	queued -> running -> succeeded | failed | canceled
//	queued -> canceled
//
// Transitions are listed once in a table (see Next and CanTransition) and the
// stores apply them with conditional updates, so a lost race is a no-op.
// Cancellation is cooperative: a running task observes the request through
// TaskControl.CancelRequested, and the worker re-checks the flag after the
// executor returns.
//
// # Usage
//
//	storage := queue.NewMemoryStorage()
//	publisher, _ := queue.NewPublisher(storage)
//	enqueuer, _ := queue.NewEnqueuer(storage, publisher)
//	worker, _ := queue.NewWorker(storage, executor, publisher)
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(worker.Run(ctx))
//
//	task, err := enqueuer.Enqueue(ctx, "sync.all", map[string]any{"user_id": 42})
//
// # Error Handling
//
// Package-level sentinel errors (e.g. ErrTaskNotFound, ErrNotRetryable,
// ErrDuplicateTask) can be checked with errors.Is.
package queue
