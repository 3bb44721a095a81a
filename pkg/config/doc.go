// Package config loads typed configuration from environment variables.
//
// Config structs declare their variables with caarlos0/env tags. Before the
// first Load the files listed in DefaultEnvFiles (".env.local", then ".env")
// are read if present, without overriding variables already exported by the
// process.
//
//	type Config struct {
//		IdleInterval time.Duration `env:"QUEUE_IDLE_INTERVAL" envDefault:"450ms"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
