package config

import (
	"errors"
	"fmt"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - dispatcher.go: dispatcher endpoint, credentials and transport
//   - worker.go: worker pool, retry and processor configuration
//   - redis.go: Redis connection and key names
//   - observability.go: logging, metrics and alert fan-out
type AppConfig struct {
	Dispatcher DispatcherConfig `envPrefix:"DISPATCHER_"`
	Worker     WorkerConfig     `envPrefix:"WORKER_"`
	Processor  ProcessorConfig  `envPrefix:"PROCESSOR_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`

	Logging       LoggingConfig `envPrefix:"LOG_"`
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Dispatcher.Sanitize()
	c.Worker.Sanitize()
	c.Processor.Sanitize()
	c.Redis.Sanitize()
	c.Logging.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports configuration the worker cannot start without.
// Call it after Sanitize.
func (c *AppConfig) Validate() error {
	var errs []error
	if err := c.Dispatcher.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
