package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/taskline/pkg/broadcast"
	"github.com/dmitrymomot/taskline/pkg/logger"
)

// GlobalEventName is the frame name of events on the all-tasks stream
const GlobalEventName = "job.event"

// StreamReadyName is the frame name sent once when the all-tasks stream opens
const StreamReadyName = "stream-ready"

// StreamRepository defines the read side of the event log
type StreamRepository interface {
	// ListTaskEvents returns events of one task with id > afterID in ascending id order
	ListTaskEvents(ctx context.Context, taskID uuid.UUID, afterID int64, limit int) ([]TaskEvent, error)

	// GetTaskStatus returns the current status. Returns ErrTaskNotFound for unknown ids.
	GetTaskStatus(ctx context.Context, taskID uuid.UUID) (TaskStatus, error)

	// LatestEventID returns the highest event id, or 0 when the log is empty
	LatestEventID(ctx context.Context) (int64, error)

	// ListEventsAfter returns events of all tasks with id > afterID joined to their task
	ListEventsAfter(ctx context.Context, afterID int64, limit int) ([]GlobalEvent, error)
}

// FrameKind distinguishes stream frames
type FrameKind int

const (
	FrameEvent FrameKind = iota
	FrameKeepAlive
	FrameReady
)

// Frame is one message written to a live stream
type Frame struct {
	Kind FrameKind
	ID   int64
	Name string
	Data []byte
}

// FrameSink writes frames to a client. A Send error ends the stream.
type FrameSink interface {
	Send(f Frame) error
}

// Streamer follows the event log and pushes frames to subscribers.
// The log in the store is the source of truth. Notices from the broadcaster
// only cut the wait before the next read, so a dropped notice delays a frame
// by at most one poll interval and never loses it.
type Streamer struct {
	repo            StreamRepository
	notifier        broadcast.Broadcaster[EventNotice]
	pollInterval    time.Duration
	flushDelay      time.Duration
	keepAlive       time.Duration
	batchSize       int
	globalBatchSize int
	logger          *slog.Logger
}

// NewStreamer creates a new Streamer
func NewStreamer(repo StreamRepository, opts ...StreamerOption) (*Streamer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	s := &Streamer{
		repo:            repo,
		pollInterval:    DefaultStreamPollInterval,
		flushDelay:      DefaultStreamFlushDelay,
		keepAlive:       DefaultStreamKeepAlive,
		batchSize:       DefaultStreamBatchSize,
		globalBatchSize: DefaultGlobalStreamBatchSize,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// StreamTask sends events of one task with id > afterID until the task reaches a
// terminal status. After the terminal status is seen it waits for the flush delay,
// sends whatever arrived in the meantime and returns.
func (s *Streamer) StreamTask(ctx context.Context, taskID uuid.UUID, afterID int64, sink FrameSink) error {
	w := s.newWaiter(ctx, sink, func(n EventNotice) bool { return n.TaskID == taskID })
	defer w.close()

	cursor := afterID
	for {
		next, full, err := s.sendTaskPage(ctx, taskID, cursor, sink)
		if err != nil {
			return err
		}
		cursor = next
		if full {
			continue
		}

		status, err := s.repo.GetTaskStatus(ctx, taskID)
		switch {
		case errors.Is(err, ErrTaskNotFound):
			return ErrTaskNotFound
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WarnContext(ctx, "failed to read task status",
				logger.TaskID(taskID),
				logger.Error(err))
		case status.IsTerminal():
			if !sleepOrDone(ctx, s.flushDelay) {
				return nil
			}
			return s.flushTask(ctx, taskID, cursor, sink)
		}

		if err := w.wait(s.pollInterval); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Streamer) flushTask(ctx context.Context, taskID uuid.UUID, cursor int64, sink FrameSink) error {
	for {
		next, full, err := s.sendTaskPage(ctx, taskID, cursor, sink)
		if err != nil || !full {
			return err
		}
		cursor = next
	}
}

func (s *Streamer) sendTaskPage(ctx context.Context, taskID uuid.UUID, cursor int64, sink FrameSink) (int64, bool, error) {
	events, err := s.repo.ListTaskEvents(ctx, taskID, cursor, s.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WarnContext(ctx, "failed to read task events",
				logger.TaskID(taskID),
				logger.Error(err))
		}
		return cursor, false, nil
	}

	for _, ev := range events {
		data := []byte(ev.Payload)
		if len(data) == 0 {
			data = []byte(`{}`)
		}
		if err := sink.Send(Frame{Kind: FrameEvent, ID: ev.ID, Name: ev.EventType, Data: data}); err != nil {
			return cursor, false, err
		}
		cursor = ev.ID
	}

	return cursor, len(events) == s.batchSize, nil
}

// StreamAll sends events of every task. It starts after afterID when given,
// otherwise after the newest existing event, and only returns when ctx is done
// or the sink fails.
func (s *Streamer) StreamAll(ctx context.Context, afterID *int64, sink FrameSink) error {
	var cursor int64
	if afterID != nil {
		cursor = *afterID
	} else {
		latest, err := s.repo.LatestEventID(ctx)
		if err != nil {
			return fmt.Errorf("failed to read latest event id: %w", err)
		}
		cursor = latest
	}

	w := s.newWaiter(ctx, sink, nil)
	defer w.close()

	if err := sink.Send(Frame{Kind: FrameReady, Name: StreamReadyName}); err != nil {
		return err
	}

	for ctx.Err() == nil {
		events, err := s.repo.ListEventsAfter(ctx, cursor, s.globalBatchSize)
		if err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "failed to read event log", logger.Error(err))
		}

		for _, ev := range events {
			data, err := json.Marshal(ev)
			if err != nil {
				return fmt.Errorf("failed to encode event %d: %w", ev.EventID, err)
			}
			if err := sink.Send(Frame{Kind: FrameEvent, ID: ev.EventID, Name: GlobalEventName, Data: data}); err != nil {
				return err
			}
			cursor = ev.EventID
		}

		if len(events) == s.globalBatchSize {
			continue
		}
		if err := w.wait(s.pollInterval); err != nil {
			return err
		}
	}

	return nil
}

// waiter blocks between polls. It wakes early on a matching notice and
// emits keep-alive frames while idle.
type waiter struct {
	ctx       context.Context
	sink      FrameSink
	sub       broadcast.Subscriber[EventNotice]
	wake      <-chan broadcast.Message[EventNotice]
	match     func(EventNotice) bool
	keepAlive *time.Ticker
}

func (s *Streamer) newWaiter(ctx context.Context, sink FrameSink, match func(EventNotice) bool) *waiter {
	w := &waiter{
		ctx:       ctx,
		sink:      sink,
		match:     match,
		keepAlive: time.NewTicker(s.keepAlive),
	}
	if s.notifier != nil {
		w.sub = s.notifier.Subscribe(ctx)
		w.wake = w.sub.Receive(ctx)
	}
	return w
}

func (w *waiter) wait(d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return nil
		case <-t.C:
			return nil
		case msg, ok := <-w.wake:
			if !ok {
				// dropped by the broadcaster, keep polling
				w.wake = nil
				continue
			}
			if w.match == nil || w.match(msg.Data) {
				return nil
			}
		case <-w.keepAlive.C:
			if err := w.sink.Send(Frame{Kind: FrameKeepAlive}); err != nil {
				return err
			}
		}
	}
}

func (w *waiter) close() {
	w.keepAlive.Stop()
	if w.sub != nil {
		_ = w.sub.Close()
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	sleepContext(ctx, d)
	return ctx.Err() == nil
}
