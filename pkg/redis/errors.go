package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis: empty connection URL")
	ErrFailedToParseRedisConnString = errors.New("redis: failed to parse connection URL")
	ErrRedisNotReady                = errors.New("redis: server did not answer within the connect timeout")
	ErrHealthcheckFailed            = errors.New("redis: healthcheck failed")
)
