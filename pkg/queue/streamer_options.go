package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/taskline/pkg/broadcast"
)

// StreamerOption configures a Streamer
type StreamerOption func(*Streamer)

// WithPollInterval sets how long a stream waits between reads of the event log
func WithPollInterval(d time.Duration) StreamerOption {
	return func(s *Streamer) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithFlushDelay sets the pause before the final read of a finished task
func WithFlushDelay(d time.Duration) StreamerOption {
	return func(s *Streamer) {
		if d > 0 {
			s.flushDelay = d
		}
	}
}

// WithKeepAlive sets the keep-alive frame interval
func WithKeepAlive(d time.Duration) StreamerOption {
	return func(s *Streamer) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithBatchSizes sets the page sizes of the per-task and all-tasks streams
func WithBatchSizes(task, global int) StreamerOption {
	return func(s *Streamer) {
		if task > 0 {
			s.batchSize = task
		}
		if global > 0 {
			s.globalBatchSize = global
		}
	}
}

// WithStreamNotifier lets streams wake up as soon as an event is published
func WithStreamNotifier(b broadcast.Broadcaster[EventNotice]) StreamerOption {
	return func(s *Streamer) {
		s.notifier = b
	}
}

// WithStreamerLogger sets the logger
func WithStreamerLogger(logger *slog.Logger) StreamerOption {
	return func(s *Streamer) {
		if logger != nil {
			s.logger = logger
		}
	}
}
