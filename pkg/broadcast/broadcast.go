package broadcast

import (
	"context"
	"sync"
)

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel messages arrive on.
	// The channel is closed when the subscriber is closed or dropped.
	// ctx is unused by the in-memory implementation; it is part of the
	// signature so network backed subscribers can honor cancellation.
	Receive(ctx context.Context) <-chan Message[T]

	// Close releases the subscription. Idempotent.
	Close() error
}

// Broadcaster sends messages to multiple subscribers.
// Slow consumers lose messages instead of blocking the sender: the sender is
// usually the task worker, and one stalled SSE client must not hold up
// task execution.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the lifetime of ctx.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast delivers msg to every active subscriber.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Close shuts down the broadcaster and closes all subscribers.
	Close() error
}

// chanSubscriber is a buffered channel with an idempotent close.
type chanSubscriber[T any] struct {
	ch     chan Message[T]
	closed bool
	mu     sync.RWMutex
}

func newChanSubscriber[T any](bufferSize int) *chanSubscriber[T] {
	return &chanSubscriber[T]{
		ch: make(chan Message[T], bufferSize),
	}
}

func closedSubscriber[T any]() *chanSubscriber[T] {
	s := newChanSubscriber[T](1)
	_ = s.Close()
	return s
}

func (s *chanSubscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *chanSubscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// offer sends without blocking. It reports false when the buffer is full or the subscriber is closed.
func (s *chanSubscriber[T]) offer(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
