package fetcher

import "time"

// Default configuration values.
const (
	defaultMaxHops      = 5
	defaultMaxRetries   = 3
	defaultErrorBackoff = time.Second
)

// Config holds article fetcher configuration.
type Config struct {
	// MaxHops bounds how many redirect documents are followed per job.
	MaxHops int `mapstructure:"max_hops"`
	// MaxRetries bounds how often a transiently failing job is re-queued.
	MaxRetries int `mapstructure:"max_retries"`
	// ErrorBackoff is slept after a queue read fails.
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

// WithDefaults returns a copy of the config with default values applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.MaxHops <= 0 {
		c.MaxHops = defaultMaxHops
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
	return c
}
