package handler

import (
	"errors"
	"net/http"
)

// ErrNilResponse indicates a handler returned nil instead of a Response
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with a status code and a stable machine readable key.
// Message, when set, is shown to the client instead of the status text.
type HTTPError struct {
	Code    int
	Key     string
	Message string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Key + ": " + e.Message
	}
	return e.Key
}

// WithMessage returns a copy of e carrying a client facing message
func (e HTTPError) WithMessage(msg string) HTTPError {
	e.Message = msg
	return e
}

var (
	ErrBadRequest          = HTTPError{Code: http.StatusBadRequest, Key: "bad_request"}
	ErrNotFound            = HTTPError{Code: http.StatusNotFound, Key: "not_found"}
	ErrConflict            = HTTPError{Code: http.StatusConflict, Key: "conflict"}
	ErrUnprocessableEntity = HTTPError{Code: http.StatusUnprocessableEntity, Key: "unprocessable_entity"}
	ErrInternalServerError = HTTPError{Code: http.StatusInternalServerError, Key: "internal_error"}
	ErrServiceUnavailable  = HTTPError{Code: http.StatusServiceUnavailable, Key: "service_unavailable"}
)

// NewHTTPError creates an HTTP error with the given status code and key.
//
//	handler.NewHTTPError(http.StatusConflict, "invalid_task_state")
func NewHTTPError(code int, key string) HTTPError {
	return HTTPError{Code: code, Key: key}
}

// Err returns a Response that hands err to the ErrorHandler configured on
// Wrap, so domain errors are logged and mapped in one place.
func Err(err error) Response {
	return errResponse{err: err}
}

type errResponse struct {
	err error
}

func (e errResponse) Render(http.ResponseWriter, *http.Request) error {
	return e.err
}
