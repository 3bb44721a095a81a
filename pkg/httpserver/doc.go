// Package httpserver runs an http.Handler with context-driven graceful
// shutdown and provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Run returns once ctx is done and in-flight requests have drained or the
// shutdown timeout has passed. Request contexts are canceled when shutdown
// starts, so streaming handlers should watch r.Context().
package httpserver
