package binder

import (
	"fmt"
	"net/http"
)

// Path binds route parameters to fields tagged with `path:"name"`.
// The extractor resolves a parameter by name, chi.URLParam fits as is.
//
// Example:
//
//	type TaskRequest struct {
//		TaskID uuid.UUID `path:"task_id"`
//	}
//
//	r.Get("/tasks/{task_id}/events", handler.Wrap(streamTask,
//		handler.WithBinders[handler.Context, TaskRequest](binder.Path(chi.URLParam)),
//	))
func Path(extractor func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrFailedToParsePath)
		}
		return bindToStruct(v, "path", func(name string) []string {
			if value := extractor(r, name); value != "" {
				return []string{value}
			}
			return nil
		}, ErrFailedToParsePath)
	}
}
