// Package jobs mounts the HTTP surface of the background task queue.
//
// The admin routes live under /admin/jobs and cover the queue overview, the
// filtered task list, task detail, retry and cancel, the hourly slot table
// and a global event stream. /tasks/{task_id}/events streams the events of a
// single task and honors Last-Event-ID on reconnect.
//
// Usage:
//
//	svc, err := jobs.NewService(inspector, enqueuer, streamer, jobs.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	r.Mount("/", svc.Handle())
//
// Responses use the handler JSON envelope. Queue errors are mapped by
// MapError: unknown tasks and slots become 404 not_found, retrying an
// unfinished task becomes 409 invalid_task_state and hours outside 0..23
// become 400 bad_request.
package jobs
