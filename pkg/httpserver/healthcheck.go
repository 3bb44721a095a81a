package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/taskline/pkg/logger"
)

// Check is a named dependency probe used by readiness endpoints.
type Check struct {
	Name  string
	Probe func(context.Context) error
}

// LivenessHandler always answers 200 ALIVE.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

// ReadinessHandler runs every check with the request context and answers
// 200 READY when all pass, 503 NOT_READY otherwise.
func ReadinessHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, c := range checks {
			if c.Probe == nil {
				continue
			}
			if err := c.Probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed",
					slog.String("check", c.Name),
					logger.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
