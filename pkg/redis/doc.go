// Package redis connects to Redis for cross-process event notices.
//
// Connect retries the initial ping using Config, and Healthcheck returns a
// probe suitable for readiness endpoints:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	ready := redis.Healthcheck(client)
//
// Errors are sentinels joined with the underlying go-redis error, so both can
// be matched with errors.Is.
package redis
