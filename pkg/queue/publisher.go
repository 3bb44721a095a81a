package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskline/pkg/broadcast"
	"github.com/dmitrymomot/taskline/pkg/logger"
)

// EventRepository appends rows to the event log.
// AppendEvent must assign ev.ID and ev.CreatedAt.
type EventRepository interface {
	AppendEvent(ctx context.Context, ev *TaskEvent) error
}

// EventNotice is a wake-up hint sent after an event is stored.
// Streamers always re-read the log, so a lost notice only delays delivery.
type EventNotice struct {
	ID     int64     `json:"id"`
	TaskID uuid.UUID `json:"task_id"`
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithNotifier sets the broadcaster used for wake-up notices
func WithNotifier(b broadcast.Broadcaster[EventNotice]) PublisherOption {
	return func(p *Publisher) {
		p.notifier = b
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Publisher is the only write path into the event log.
type Publisher struct {
	repo     EventRepository
	notifier broadcast.Broadcaster[EventNotice]
	logger   *slog.Logger
}

// NewPublisher creates a new Publisher
func NewPublisher(repo EventRepository, opts ...PublisherOption) (*Publisher, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	p := &Publisher{
		repo:   repo,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Publish stores one event for the task and returns it with its assigned id.
func (p *Publisher) Publish(ctx context.Context, taskID uuid.UUID, eventType string, payload any) (*TaskEvent, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	ev := &TaskEvent{
		TaskID:    taskID,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.repo.AppendEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to append %s event for task %s: %w", eventType, taskID, err)
	}

	if p.notifier != nil {
		msg := broadcast.Message[EventNotice]{Data: EventNotice{ID: ev.ID, TaskID: taskID}}
		if err := p.notifier.Broadcast(ctx, msg); err != nil {
			p.logger.WarnContext(ctx, "failed to broadcast event notice",
				logger.TaskID(taskID),
				logger.EventID(ev.ID),
				logger.Error(err))
		}
	}

	return ev, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(v), nil
	}
	return json.Marshal(payload)
}
