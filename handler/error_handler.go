package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/taskline/pkg/binder"
	"github.com/dmitrymomot/taskline/pkg/logger"
)

// ErrorMapper translates a domain error into an HTTPError.
// It reports false for errors it does not recognize.
type ErrorMapper func(err error) (HTTPError, bool)

// ErrorHandlerOption configures NewErrorHandler
type ErrorHandlerOption func(*errorHandlerConfig)

type errorHandlerConfig struct {
	mappers []ErrorMapper
}

// WithErrorMapper registers a mapper. Mappers run in order, first match wins.
func WithErrorMapper(m ErrorMapper) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		if m != nil {
			c.mappers = append(c.mappers, m)
		}
	}
}

// NewErrorHandler returns an ErrorHandler that logs the failure with the
// request id and renders the JSON error envelope.
// Binding failures become 400 bad_request; 5xx responses never expose the
// underlying error text.
func NewErrorHandler(log *slog.Logger, opts ...ErrorHandlerOption) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("error_handler"))

	cfg := &errorHandlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(ctx Context, err error) {
		classified := cfg.classify(err)

		status, _ := errorToDetail(classified)
		r := ctx.Request()

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if renderErr := JSONError(classified).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.WarnContext(r.Context(), "failed to render error response", logger.Error(renderErr))
		}
	}
}

// classify wraps err so that errorToDetail finds the right HTTPError while
// errors.Is still sees the original chain.
func (c *errorHandlerConfig) classify(err error) error {
	var httpErr HTTPError
	var valErr ValidationError
	if errors.As(err, &httpErr) || errors.As(err, &valErr) {
		return err
	}

	for _, m := range c.mappers {
		if mapped, ok := m(err); ok {
			return errors.Join(mapped, err)
		}
	}

	if isBindError(err) {
		return errors.Join(ErrBadRequest.WithMessage(err.Error()), err)
	}
	return err
}

func isBindError(err error) bool {
	return errors.Is(err, binder.ErrFailedToParseJSON) ||
		errors.Is(err, binder.ErrFailedToParseQuery) ||
		errors.Is(err, binder.ErrFailedToParsePath) ||
		errors.Is(err, binder.ErrUnsupportedMediaType) ||
		errors.Is(err, binder.ErrMissingContentType)
}
