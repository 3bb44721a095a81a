package queue_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/queue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testQueue struct {
	storage   *queue.MemoryStorage
	publisher *queue.Publisher
	enqueuer  *queue.Enqueuer
}

func newTestQueue(t *testing.T, opts ...queue.PublisherOption) *testQueue {
	t.Helper()

	storage := queue.NewMemoryStorage()

	opts = append(opts, queue.WithPublisherLogger(discardLogger()))
	publisher, err := queue.NewPublisher(storage, opts...)
	require.NoError(t, err)

	enqueuer, err := queue.NewEnqueuer(storage, publisher, queue.WithEnqueuerLogger(discardLogger()))
	require.NoError(t, err)

	return &testQueue{storage: storage, publisher: publisher, enqueuer: enqueuer}
}

func (q *testQueue) newWorker(t *testing.T, exec queue.Executor, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()

	opts = append(opts, queue.WithWorkerLogger(discardLogger()))
	w, err := queue.NewWorker(q.storage, exec, q.publisher, opts...)
	require.NoError(t, err)
	return w
}

// recordingSink collects frames written by a streamer
type recordingSink struct {
	mu     sync.Mutex
	frames []queue.Frame
	onSend func(queue.Frame)
}

func (s *recordingSink) Send(f queue.Frame) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	cb := s.onSend
	s.mu.Unlock()

	if cb != nil {
		cb(f)
	}
	return nil
}

func (s *recordingSink) events() []queue.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []queue.Frame
	for _, f := range s.frames {
		if f.Kind == queue.FrameEvent {
			out = append(out, f)
		}
	}
	return out
}

func (s *recordingSink) all() []queue.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queue.Frame(nil), s.frames...)
}

func eventNames(frames []queue.Frame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Name)
	}
	return names
}
