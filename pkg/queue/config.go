package queue

import "time"

const (
	DefaultIdleInterval          = 450 * time.Millisecond
	DefaultErrorBackoff          = 2 * time.Second
	DefaultSchedulerTick         = 45 * time.Second
	DefaultStreamPollInterval    = 500 * time.Millisecond
	DefaultStreamFlushDelay      = 120 * time.Millisecond
	DefaultStreamKeepAlive       = 8 * time.Second
	DefaultStreamBatchSize       = 100
	DefaultGlobalStreamBatchSize = 200
)

// Config holds the timing configuration of the worker, scheduler and streamers
type Config struct {
	IdleInterval          time.Duration `env:"QUEUE_IDLE_INTERVAL" envDefault:"450ms"`
	ErrorBackoff          time.Duration `env:"QUEUE_ERROR_BACKOFF" envDefault:"2s"`
	SchedulerTick         time.Duration `env:"QUEUE_SCHEDULER_TICK" envDefault:"45s"`
	SchedulerEnabled      bool          `env:"QUEUE_SCHEDULER_ENABLED" envDefault:"true"`
	StreamPollInterval    time.Duration `env:"QUEUE_STREAM_POLL_INTERVAL" envDefault:"500ms"`
	StreamFlushDelay      time.Duration `env:"QUEUE_STREAM_FLUSH_DELAY" envDefault:"120ms"`
	StreamKeepAlive       time.Duration `env:"QUEUE_STREAM_KEEPALIVE" envDefault:"8s"`
	StreamBatchSize       int           `env:"QUEUE_STREAM_BATCH_SIZE" envDefault:"100"`
	GlobalStreamBatchSize int           `env:"QUEUE_GLOBAL_STREAM_BATCH_SIZE" envDefault:"200"`
}

// WorkerOptions maps the config onto worker options
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithIdleInterval(c.IdleInterval),
		WithErrorBackoff(c.ErrorBackoff),
	}
}

// StreamerOptions maps the config onto streamer options
func (c Config) StreamerOptions() []StreamerOption {
	return []StreamerOption{
		WithPollInterval(c.StreamPollInterval),
		WithFlushDelay(c.StreamFlushDelay),
		WithKeepAlive(c.StreamKeepAlive),
		WithBatchSizes(c.StreamBatchSize, c.GlobalStreamBatchSize),
	}
}
