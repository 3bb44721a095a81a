package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls one attribute out of a record's context.
// Returning false skips it.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// contextHandler adds the attributes of its extractors to every record.
// Empty attributes, such as a request id that was never set, are dropped.
type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

func newContextHandler(next slog.Handler, extractors []ContextExtractor) slog.Handler {
	if len(extractors) == 0 {
		return next
	}
	return &contextHandler{Handler: next, extractors: extractors}
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, extract := range h.extractors {
		attr, ok := extract(ctx)
		if !ok || attr.Equal(slog.Attr{}) {
			continue
		}
		rec.AddAttrs(attr)
	}
	return h.Handler.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}
