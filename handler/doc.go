// Package handler turns typed functions into http.HandlerFunc values.
//
// A HandlerFunc receives a bound request struct and returns a Response.
// Wrap runs the configured binders, calls the function and renders the result;
// binding and rendering failures go to an ErrorHandler.
//
//	type TaskRequest struct {
//		TaskID uuid.UUID `path:"task_id"`
//	}
//
//	detail := func(ctx handler.Context, req TaskRequest) handler.Response {
//		d, err := inspector.TaskDetail(ctx, req.TaskID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(d)
//	}
//
//	r.Get("/admin/jobs/realtime/{task_id}", handler.Wrap(detail,
//		handler.WithBinders[handler.Context, TaskRequest](binder.Path(chi.URLParam)),
//		handler.WithErrorHandler[handler.Context, TaskRequest](errorHandler),
//	))
//
// # Responses
//
// JSON bodies share one envelope: {"data": ..., "meta": ..., "error": {...}}.
// JSONError derives the status from HTTPError or ValidationError and hides
// the text of any other error behind a 500.
//
// SSE opens a server-sent event stream backed by datastar's event writer.
// The stream starts with the first event, so a StreamFunc that fails before
// sending anything still produces a normal error response.
//
// # Errors
//
// NewErrorHandler logs each failure with the chi request id and renders the
// JSON error envelope. ErrorMapper functions translate domain errors, for
// instance a missing record into ErrNotFound.
package handler
