package pg

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
)

type logger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// gooseLogger routes goose output through the application logger.
type gooseLogger struct {
	ctx context.Context
	log logger
}

func newGooseLogger(ctx context.Context, log logger) goose.Logger {
	return &gooseLogger{ctx: ctx, log: log}
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.log.ErrorContext(l.ctx, fmt.Sprintf(format, v...))
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.log.InfoContext(l.ctx, fmt.Sprintf(format, v...))
}
