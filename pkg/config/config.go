package config

import (
	"time"
)

// Config holds the engine's runtime knobs. Definitions (tasks, workflows)
// live in the catalog; this is only operational tuning.
type Config struct {
	Runtime RuntimeConfig `koanf:"runtime" validate:"required"`
	HTTP    HTTPConfig    `koanf:"http"    validate:"required"`
	Retry   RetryConfig   `koanf:"retry"   validate:"required"`
	Log     LogConfig     `koanf:"log"`
}

type RuntimeConfig struct {
	// MaxConcurrentTasks bounds in-flight HTTP tasks per execution.
	MaxConcurrentTasks int `koanf:"max_concurrent_tasks" validate:"gte=1"`
	// GlobalTimeout is the workflow-wide deadline unless the definition
	// overrides it.
	GlobalTimeout time.Duration `koanf:"global_timeout" validate:"gt=0"`
}

type HTTPConfig struct {
	// RequestTimeout bounds one HTTP attempt, not the retry sequence.
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
}

type RetryConfig struct {
	InitialDelay      time.Duration `koanf:"initial_delay"      validate:"gt=0"`
	MaxDelay          time.Duration `koanf:"max_delay"          validate:"gt=0"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier" validate:"gte=1"`
	MaxRetries        int           `koanf:"max_retries"        validate:"gte=0"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			MaxConcurrentTasks: 10,
			GlobalTimeout:      30 * time.Second,
		},
		HTTP: HTTPConfig{
			RequestTimeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			InitialDelay:      100 * time.Millisecond,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2.0,
			MaxRetries:        3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
