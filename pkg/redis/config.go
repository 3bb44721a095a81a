package redis

import "time"

// Config is populated from REDIS_* environment variables.
// It is only required when QUEUE_NOTIFIER=redis.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	EventsChannel  string        `env:"REDIS_EVENTS_CHANNEL" envDefault:"taskline:task-events"` // Pub/Sub channel for event notices
}
