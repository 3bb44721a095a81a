package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Healthcheck returns a readiness probe for the event notifier connection.
// Besides PING it asks for the subscriber count of every given channel, so a
// server that refuses Pub/Sub commands is reported as not ready.
func Healthcheck(client redis.UniversalClient, channels ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		if len(channels) == 0 {
			return nil
		}
		if err := client.PubSubNumSub(ctx, channels...).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
