// Package logger builds slog loggers with per-environment defaults and
// attributes injected from context.
//
// New returns a *slog.Logger whose handler runs every registered
// ContextExtractor on each record, which
// is how request ids set by the HTTP middleware end up in worker and handler
// logs without being passed around explicitly.
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, cfg.Name),
//		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "task finished", logger.TaskID(id), logger.TaskStatus(status))
//
// The attribute helpers keep key names consistent across packages. Error
// returns an empty attribute for nil errors, so it can be passed without a
// nil check.
package logger
