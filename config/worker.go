package config

import (
	"runtime"
	"strings"
	"time"
)

// WorkerConfig contains worker pool configuration.
type WorkerConfig struct {
	// Count is the number of workers; 0 means one per CPU.
	Count int `env:"COUNT" envDefault:"0"`

	// CustomValue restricts fetches to jobs carrying this tag.
	CustomValue string `env:"CUSTOM_VALUE"`

	// IdleBackoff is the wait after an empty or failed fetch.
	IdleBackoff time.Duration `env:"IDLE_BACKOFF" envDefault:"100ms"`

	// Terminal status update retry policy.
	StatusRetryAttempts int           `env:"STATUS_RETRY_ATTEMPTS" envDefault:"3"`
	StatusRetryInitial  time.Duration `env:"STATUS_RETRY_INITIAL"  envDefault:"200ms"`
	StatusRetryMax      time.Duration `env:"STATUS_RETRY_MAX"      envDefault:"2s"`
}

// Sanitize applies guardrails to worker configuration values.
func (c *WorkerConfig) Sanitize() {
	if c.Count <= 0 {
		c.Count = runtime.NumCPU()
	}
	c.CustomValue = strings.TrimSpace(c.CustomValue)
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = 100 * time.Millisecond
	}
	if c.StatusRetryAttempts < 1 {
		c.StatusRetryAttempts = 1
	}
	if c.StatusRetryInitial <= 0 {
		c.StatusRetryInitial = 200 * time.Millisecond
	}
	if c.StatusRetryMax < c.StatusRetryInitial {
		c.StatusRetryMax = c.StatusRetryInitial
	}
}

// ProcessorConfig configures the built-in JMESPath processor used by cmd/mammoth.
type ProcessorConfig struct {
	Expression string "env:\"EXPRESSION\" envDefault:\"`true`\""
}

// Sanitize trims the expression and restores the default when blank.
func (c *ProcessorConfig) Sanitize() {
	c.Expression = strings.TrimSpace(c.Expression)
	if c.Expression == "" {
		c.Expression = "`true`"
	}
}
