// Command taskline runs the background task queue: the worker lane, the
// hourly scheduler and the HTTP surface for admins and event streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/taskline/internal/db"
	"github.com/dmitrymomot/taskline/modules/jobs"
	"github.com/dmitrymomot/taskline/pkg/broadcast"
	"github.com/dmitrymomot/taskline/pkg/config"
	"github.com/dmitrymomot/taskline/pkg/httpserver"
	taskjobs "github.com/dmitrymomot/taskline/pkg/jobs"
	"github.com/dmitrymomot/taskline/pkg/logger"
	"github.com/dmitrymomot/taskline/pkg/pg"
	"github.com/dmitrymomot/taskline/pkg/queue"
	"github.com/dmitrymomot/taskline/pkg/queue/pgstore"
	"github.com/dmitrymomot/taskline/pkg/redis"
)

const (
	notifierMemory = "memory"
	notifierRedis  = "redis"

	memoryNotifierBuffer = 64
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"taskline"`
	LogLevel string `env:"LOG_LEVEL"`
	Notifier string `env:"QUEUE_NOTIFIER" envDefault:"memory"` // memory | redis
}

type configs struct {
	app   appConfig
	pg    pg.Config
	redis redis.Config
	http  httpserver.Config
	queue queue.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("taskline stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func loadConfigs() (*configs, error) {
	var c configs
	if err := config.Load(&c.app); err != nil {
		return nil, err
	}
	if err := config.Load(&c.pg); err != nil {
		return nil, err
	}
	if err := config.Load(&c.redis); err != nil {
		return nil, err
	}
	if err := config.Load(&c.http); err != nil {
		return nil, err
	}
	if err := config.Load(&c.queue); err != nil {
		return nil, err
	}
	return &c, nil
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevel(logger.ParseLevel(cfg.LogLevel)))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)
	return log
}

func run(ctx context.Context) error {
	cfg, err := loadConfigs()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg.app)

	pool, err := pg.Connect(ctx, cfg.pg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.MigrateFS(ctx, pool, db.Migrations, db.MigrationsDir, cfg.pg, log); err != nil {
		return err
	}

	storage, err := pgstore.New(pool)
	if err != nil {
		return err
	}

	checks := []httpserver.Check{{Name: "postgres", Probe: pg.Healthcheck(pool, "job_tasks", "job_task_events")}}

	notifier, closeNotifier, err := newNotifier(ctx, cfg, log, &checks)
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc, worker, scheduler, err := buildQueue(pool, storage, notifier, cfg.queue, log)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, checks...))
	r.Mount("/", svc.Handle())

	server := httpserver.NewFromConfig(cfg.http, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	if cfg.queue.SchedulerEnabled {
		g.Go(scheduler.Run(ctx))
	} else {
		log.InfoContext(ctx, "scheduler disabled")
	}
	g.Go(func() error {
		return server.Run(ctx, r)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newNotifier picks the broadcaster that wakes streams up after an event is
// written. The redis variant also registers a readiness check.
func newNotifier(ctx context.Context, cfg *configs, log *slog.Logger, checks *[]httpserver.Check) (broadcast.Broadcaster[queue.EventNotice], func(), error) {
	switch cfg.app.Notifier {
	case "", notifierMemory:
		b := broadcast.NewMemoryBroadcaster[queue.EventNotice](memoryNotifierBuffer)
		return b, func() { _ = b.Close() }, nil
	case notifierRedis:
		client, err := redis.Connect(ctx, cfg.redis)
		if err != nil {
			return nil, nil, err
		}
		*checks = append(*checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(client, cfg.redis.EventsChannel)})
		b := broadcast.NewRedisBroadcaster[queue.EventNotice](client, cfg.redis.EventsChannel,
			broadcast.WithRedisLogger(log))
		return b, func() {
			_ = b.Close()
			_ = client.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown QUEUE_NOTIFIER %q", cfg.app.Notifier)
	}
}

func buildQueue(
	pool *pgxpool.Pool,
	storage *pgstore.Storage,
	notifier broadcast.Broadcaster[queue.EventNotice],
	cfg queue.Config,
	log *slog.Logger,
) (*jobs.Service, *queue.Worker, *queue.Scheduler, error) {
	publisher, err := queue.NewPublisher(storage,
		queue.WithNotifier(notifier),
		queue.WithPublisherLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}

	enqueuer, err := queue.NewEnqueuer(storage, publisher, queue.WithEnqueuerLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}

	users, err := taskjobs.NewPostgresUsers(pool)
	if err != nil {
		return nil, nil, nil, err
	}
	executor := taskjobs.NewExecutor(
		taskjobs.WithUserDirectory(users),
		taskjobs.WithLogger(log),
	)
	// Tasks routed to an unset collaborator fail at execution time. Say so at
	// startup so operators do not first learn about it from failed tasks.
	if missing := executor.MissingCollaborators(); len(missing) > 0 {
		log.Warn("executor collaborators not configured, their tasks will fail",
			slog.Any("missing", missing))
	}

	worker, err := queue.NewWorker(storage, executor, publisher,
		append(cfg.WorkerOptions(), queue.WithWorkerLogger(log))...)
	if err != nil {
		return nil, nil, nil, err
	}

	scheduler, err := queue.NewScheduler(storage, enqueuer,
		queue.WithCheckInterval(cfg.SchedulerTick),
		queue.WithSchedulerLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}

	inspector, err := queue.NewInspector(storage)
	if err != nil {
		return nil, nil, nil, err
	}

	streamer, err := queue.NewStreamer(storage,
		append(cfg.StreamerOptions(),
			queue.WithStreamNotifier(notifier),
			queue.WithStreamerLogger(log))...)
	if err != nil {
		return nil, nil, nil, err
	}

	svc, err := jobs.NewService(inspector, enqueuer, streamer, jobs.WithLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}

	return svc, worker, scheduler, nil
}
