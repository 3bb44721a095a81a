package broadcast_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/broadcast"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBroadcaster(t *testing.T) {
	t.Parallel()

	t.Run("delivers across broadcaster instances", func(t *testing.T) {
		t.Parallel()
		client := newRedisClient(t)

		producer := broadcast.NewRedisBroadcaster[notice](client, "task-events")
		consumer := broadcast.NewRedisBroadcaster[notice](client, "task-events")
		defer consumer.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sub := consumer.Subscribe(ctx)
		defer sub.Close()

		require.NoError(t, producer.Broadcast(ctx, broadcast.Message[notice]{Data: notice{ID: 42, Task: "x"}}))

		msg, ok := receiveOne(t, sub)
		require.True(t, ok)
		assert.Equal(t, notice{ID: 42, Task: "x"}, msg.Data)
	})

	t.Run("channels are isolated", func(t *testing.T) {
		t.Parallel()
		client := newRedisClient(t)

		a := broadcast.NewRedisBroadcaster[notice](client, "a")
		b := broadcast.NewRedisBroadcaster[notice](client, "b")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sub := b.Subscribe(ctx)

		require.NoError(t, a.Broadcast(ctx, broadcast.Message[notice]{Data: notice{ID: 1}}))
		require.NoError(t, b.Broadcast(ctx, broadcast.Message[notice]{Data: notice{ID: 2}}))

		msg, ok := receiveOne(t, sub)
		require.True(t, ok)
		assert.Equal(t, int64(2), msg.Data.ID)
	})

	t.Run("close ends subscriptions", func(t *testing.T) {
		t.Parallel()
		client := newRedisClient(t)
		b := broadcast.NewRedisBroadcaster[notice](client, "c")

		sub := b.Subscribe(context.Background())
		require.NoError(t, b.Close())

		_, ok := receiveOne(t, sub)
		assert.False(t, ok)

		_, ok = receiveOne(t, b.Subscribe(context.Background()))
		assert.False(t, ok)
	})

	t.Run("context cancel ends the subscription", func(t *testing.T) {
		t.Parallel()
		client := newRedisClient(t)
		b := broadcast.NewRedisBroadcaster[notice](client, "d")

		ctx, cancel := context.WithCancel(context.Background())
		sub := b.Subscribe(ctx)
		cancel()

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-sub.Receive(context.Background()):
				return !ok
			default:
				return false
			}
		}, time.Second, time.Millisecond)
	})
}
