package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/taskline/pkg/broadcast"
	"github.com/dmitrymomot/taskline/pkg/queue"
)

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	_, err := queue.NewPublisher(nil)
	assert.ErrorIs(t, err, queue.ErrRepositoryNil)

	notifier := broadcast.NewMemoryBroadcaster[queue.EventNotice](4)
	defer notifier.Close()

	q := newTestQueue(t, queue.WithNotifier(notifier))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, err := q.enqueuer.StartInline(ctx, "sync.all", map[string]any{"user_id": 1})
	require.NoError(t, err)

	sub := notifier.Subscribe(ctx)
	defer sub.Close()

	ev, err := q.publisher.Publish(ctx, task.ID, queue.EventTaskProgress, map[string]any{"stage": "starred"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.ID)
	assert.JSONEq(t, `{"stage":"starred"}`, string(ev.Payload))

	select {
	case msg := <-sub.Receive(ctx):
		assert.Equal(t, queue.EventNotice{ID: 3, TaskID: task.ID}, msg.Data)
	case <-time.After(time.Second):
		t.Fatal("notice not delivered")
	}

	t.Run("nil and raw payloads", func(t *testing.T) {
		ev, err := q.publisher.Publish(ctx, task.ID, queue.EventTaskProgress, nil)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(ev.Payload))

		ev, err = q.publisher.Publish(ctx, task.ID, queue.EventTaskProgress, json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(ev.Payload))
	})
}
