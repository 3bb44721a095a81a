package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisOption configures a RedisBroadcaster
type RedisOption func(*redisOptions)

type redisOptions struct {
	bufferSize int
	logger     *slog.Logger
}

// WithRedisBufferSize sets the per-subscriber channel capacity
func WithRedisBufferSize(n int) RedisOption {
	return func(o *redisOptions) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithRedisLogger sets the logger used for decode and subscribe failures
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// RedisBroadcaster fans messages out across processes through a Redis Pub/Sub channel.
// Messages are JSON encoded. Like the memory implementation it never blocks on
// slow consumers; a full subscriber buffer drops the message for that subscriber.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	channel    string
	bufferSize int
	logger     *slog.Logger

	mu     sync.Mutex
	subs   map[*redisSubscriber[T]]struct{}
	closed bool
}

// NewRedisBroadcaster creates a broadcaster on the given Pub/Sub channel
func NewRedisBroadcaster[T any](client redis.UniversalClient, channel string, opts ...RedisOption) *RedisBroadcaster[T] {
	o := &redisOptions{bufferSize: 64, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	return &RedisBroadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: o.bufferSize,
		logger:     o.logger,
		subs:       make(map[*redisSubscriber[T]]struct{}),
	}
}

// Subscribe opens a Pub/Sub subscription that lives until ctx is done or the subscriber is closed.
// The subscription is confirmed before Subscribe returns, so a Broadcast issued
// afterwards is always seen. On failure a closed subscriber is returned.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return closedSubscriber[T]()
	}

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		b.logger.WarnContext(ctx, "failed to subscribe to redis channel",
			slog.String("channel", b.channel),
			slog.String("error", err.Error()))
		_ = ps.Close()
		return closedSubscriber[T]()
	}

	sub := &redisSubscriber[T]{
		ps:   ps,
		out:  make(chan Message[T], b.bufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return closedSubscriber[T]()
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		sub.pump(ctx, b.logger)
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}()

	return sub
}

// Broadcast publishes msg.Data as JSON
func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	data, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", b.channel, err)
	}
	return nil
}

// Close closes every subscriber. The Redis client itself is left open.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscriber[T], 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

type redisSubscriber[T any] struct {
	ps        *redis.PubSub
	out       chan Message[T]
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.out
}

func (s *redisSubscriber[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// pump is the only writer of s.out and closes it on exit.
func (s *redisSubscriber[T]) pump(ctx context.Context, logger *slog.Logger) {
	defer close(s.out)
	defer s.ps.Close()

	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			var data T
			if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
				logger.Warn("failed to decode broadcast message",
					slog.String("channel", m.Channel),
					slog.String("error", err.Error()))
				continue
			}
			select {
			case s.out <- Message[T]{Data: data}:
			default:
			}
		}
	}
}
