// Package binder fills request structs from HTTP request data.
//
// Each binder reads one source and only touches fields tagged for it:
//
//   - JSON(): application/json bodies, strict (unknown fields are rejected)
//   - Query(): URL query parameters, `query:"name"`
//   - Path(extractor): route parameters, `path:"name"`
//
// Binders compose through handler.WithBinders and run in order, so a single
// request struct may combine path, query and body fields:
//
//	type SetSlotRequest struct {
//		HourUTC int  `path:"hour_utc" json:"-"`
//		Enabled bool `json:"enabled"`
//	}
//
// Fields implementing encoding.TextUnmarshaler are decoded through it, which
// covers identifiers such as uuid.UUID.
//
// Every failure wraps one of the package errors (ErrFailedToParseJSON,
// ErrFailedToParseQuery, ErrFailedToParsePath, ErrUnsupportedMediaType,
// ErrMissingContentType) so callers can map them to 400 responses with errors.Is.
package binder
