package handler

import (
	"encoding/json"
	"errors"
	"maps"
	"net/http"
)

// JSONResponse is the envelope of every JSON body
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Details map[string][]string `json:"details,omitempty"`
}

type jsonResponse struct {
	status int
	body   JSONResponse
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	return json.NewEncoder(w).Encode(j.body)
}

// JSONOption configures a JSON response
type JSONOption func(*jsonResponse)

// WithJSONStatus sets the HTTP status code
func WithJSONStatus(status int) JSONOption {
	return func(r *jsonResponse) {
		r.status = status
	}
}

// WithJSONMeta sets the meta object of the envelope
func WithJSONMeta(meta map[string]any) JSONOption {
	return func(r *jsonResponse) {
		r.body.Meta = meta
	}
}

// JSON wraps v into the data field of the envelope with status 200.
func JSON(v any, opts ...JSONOption) Response {
	r := &jsonResponse{
		status: http.StatusOK,
		body:   JSONResponse{Data: v},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JSONError renders err into the error field of the envelope.
// HTTPError and ValidationError pick the status; anything else is a 500
// whose message is not exposed.
func JSONError(err error, opts ...JSONOption) Response {
	r := &jsonResponse{}
	r.status, r.body.Error = errorToDetail(err)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func errorToDetail(err error) (int, *ErrorDetail) {
	var valErr ValidationError
	if errors.As(err, &valErr) {
		detail := &ErrorDetail{Code: "validation_error", Message: valErr.Error()}
		if len(valErr) > 0 {
			detail.Details = make(map[string][]string, len(valErr))
			maps.Copy(detail.Details, valErr)
		}
		return http.StatusUnprocessableEntity, detail
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, &ErrorDetail{Code: httpErr.Key, Message: msg}
	}

	return http.StatusInternalServerError, &ErrorDetail{
		Code:    ErrInternalServerError.Key,
		Message: http.StatusText(http.StatusInternalServerError),
	}
}
