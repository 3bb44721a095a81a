package jobs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/taskline/handler"
	"github.com/dmitrymomot/taskline/pkg/binder"
	"github.com/dmitrymomot/taskline/pkg/logger"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

// Service serves the admin and streaming routes of the task queue.
type Service struct {
	inspector    *queue.Inspector
	enqueuer     *queue.Enqueuer
	streamer     *queue.Streamer
	logger       *slog.Logger
	errorHandler handler.ErrorHandler[handler.Context]
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger used by the default error handler
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithErrorHandler replaces the default error handler
func WithErrorHandler(h handler.ErrorHandler[handler.Context]) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.errorHandler = h
		}
	}
}

// NewService creates a new Service
func NewService(inspector *queue.Inspector, enqueuer *queue.Enqueuer, streamer *queue.Streamer, opts ...ServiceOption) (*Service, error) {
	if inspector == nil {
		return nil, ErrInspectorNil
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerNil
	}
	if streamer == nil {
		return nil, ErrStreamerNil
	}

	s := &Service{
		inspector: inspector,
		enqueuer:  enqueuer,
		streamer:  streamer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.errorHandler == nil {
		s.errorHandler = handler.NewErrorHandler(
			s.logger.With(logger.Component("jobs_http")),
			handler.WithErrorMapper(MapError),
		)
	}

	return s, nil
}

type (
	// ListTasksRequest filters the realtime task list
	ListTasksRequest struct {
		Status          string `query:"status"`
		TaskType        string `query:"task_type"`
		ExcludeTaskType string `query:"exclude_task_type"`
		Page            int    `query:"page"`
		PageSize        int    `query:"page_size"`
	}

	TaskRequest struct {
		TaskID uuid.UUID `path:"task_id"`
	}

	SetSlotRequest struct {
		HourUTC int   `path:"hour_utc" json:"-"`
		Enabled *bool `json:"enabled"`
	}

	// TaskStatusResponse is returned by retry and cancel
	TaskStatusResponse struct {
		TaskID uuid.UUID        `json:"task_id"`
		Status queue.TaskStatus `json:"status"`
	}

	SlotsResponse struct {
		Items []queue.HourSlot `json:"items"`
	}
)

func (r ListTasksRequest) filter() queue.TaskFilter {
	return queue.TaskFilter{
		Status:          r.Status,
		TaskType:        r.TaskType,
		ExcludeTaskType: r.ExcludeTaskType,
		Page:            r.Page,
		PageSize:        r.PageSize,
	}
}

// Handle returns the router with all routes of the service
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Route("/admin/jobs", func(r chi.Router) {
		r.Get("/overview", handler.Wrap(s.overview,
			handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
		))
		r.Get("/realtime", handler.Wrap(s.listTasks,
			handler.WithBinders[handler.Context, ListTasksRequest](binder.Query()),
			handler.WithErrorHandler[handler.Context, ListTasksRequest](s.errorHandler),
		))
		r.Route("/realtime/{task_id}", func(r chi.Router) {
			r.Get("/", s.wrapTask(s.taskDetail))
			r.Post("/retry", s.wrapTask(s.retryTask))
			r.Post("/cancel", s.wrapTask(s.cancelTask))
		})
		r.Get("/scheduled", handler.Wrap(s.listSlots,
			handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
		))
		r.Patch("/scheduled/{hour_utc}", handler.Wrap(s.setSlot,
			handler.WithBinders[handler.Context, SetSlotRequest](binder.Path(chi.URLParam), binder.JSON()),
			handler.WithErrorHandler[handler.Context, SetSlotRequest](s.errorHandler),
		))
		r.Get("/events", handler.Wrap(s.streamAll,
			handler.WithErrorHandler[handler.Context, struct{}](s.errorHandler),
		))
	})

	r.Get("/tasks/{task_id}/events", s.wrapTask(s.streamTask))

	return r
}

func (s *Service) wrapTask(h handler.HandlerFunc[handler.Context, TaskRequest]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, TaskRequest](binder.Path(chi.URLParam)),
		handler.WithErrorHandler[handler.Context, TaskRequest](s.errorHandler),
	)
}

func (s *Service) overview(ctx handler.Context, _ struct{}) handler.Response {
	o, err := s.inspector.Overview(ctx)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(o)
}

func (s *Service) listTasks(ctx handler.Context, req ListTasksRequest) handler.Response {
	page, err := s.inspector.ListTasks(ctx, req.filter())
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(page)
}

func (s *Service) taskDetail(ctx handler.Context, req TaskRequest) handler.Response {
	detail, err := s.inspector.TaskDetail(ctx, req.TaskID)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(detail)
}

func (s *Service) retryTask(ctx handler.Context, req TaskRequest) handler.Response {
	task, err := s.enqueuer.Retry(ctx, req.TaskID, nil)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(TaskStatusResponse{TaskID: task.ID, Status: task.Status})
}

func (s *Service) cancelTask(ctx handler.Context, req TaskRequest) handler.Response {
	status, err := s.enqueuer.Cancel(ctx, req.TaskID)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(TaskStatusResponse{TaskID: req.TaskID, Status: status})
}

func (s *Service) listSlots(ctx handler.Context, _ struct{}) handler.Response {
	slots, err := s.inspector.ListSlots(ctx)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(SlotsResponse{Items: slots})
}

func (s *Service) setSlot(ctx handler.Context, req SetSlotRequest) handler.Response {
	if req.Enabled == nil {
		verr := handler.NewValidationError()
		verr.Add("enabled", "is required")
		return handler.Err(verr)
	}

	slot, err := s.inspector.SetSlotEnabled(ctx, req.HourUTC, *req.Enabled)
	if err != nil {
		return handler.Err(err)
	}
	return handler.JSON(slot)
}

func (s *Service) streamAll(_ handler.Context, _ struct{}) handler.Response {
	return handler.SSE(func(stream *handler.Stream) error {
		var after *int64
		if id, ok := lastEventID(stream); ok {
			after = &id
		}
		return s.streamer.StreamAll(stream.Context(), after, streamSink{stream: stream})
	})
}

func (s *Service) streamTask(_ handler.Context, req TaskRequest) handler.Response {
	return handler.SSE(func(stream *handler.Stream) error {
		after, _ := lastEventID(stream)
		return s.streamer.StreamTask(stream.Context(), req.TaskID, after, streamSink{stream: stream})
	})
}
