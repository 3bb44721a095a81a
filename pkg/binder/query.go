package binder

import (
	"net/http"
)

// Query binds URL query parameters to fields tagged with `query:"name"`.
//
// Supported types: string, signed and unsigned integers, bool, slices of
// those, pointers for optional values and any encoding.TextUnmarshaler
// (uuid.UUID for instance).
//
// Example:
//
//	type ListTasksRequest struct {
//		Status   string `query:"status"`
//		TaskType string `query:"task_type"`
//		Page     int    `query:"page"`
//	}
//
//	r.Get("/admin/jobs/realtime", handler.Wrap(listTasks,
//		handler.WithBinders[handler.Context, ListTasksRequest](binder.Query()),
//	))
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		values := r.URL.Query()
		return bindToStruct(v, "query", func(name string) []string {
			return values[name]
		}, ErrFailedToParseQuery)
	}
}
