// Package scheduler dispatches outbox write jobs to the recommendation
// service with bounded concurrency and retries.
package scheduler

import "time"

// DefaultOperationLimit is the concurrency limit of an operation with no
// explicit entry in ByOperation.
const DefaultOperationLimit = 4

// Config defines the scheduler configuration.
type Config struct {
	// GlobalMax is the maximum number of concurrent dispatches.
	GlobalMax int `yaml:"global_max"`
	// ByOperation defines per-operation concurrency limits.
	ByOperation map[string]int `yaml:"by_operation"`
	// PollInterval is how often the outbox is scanned.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxAttempts bounds the sends of one job, including the first.
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		GlobalMax: 10,
		ByOperation: map[string]int{
			"update_rosters": 2,
		},
		PollInterval:   500 * time.Millisecond,
		MaxAttempts:    8,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// GetOperationLimit returns the concurrency limit for an operation.
func (c *Config) GetOperationLimit(operation string) int {
	if limit, ok := c.ByOperation[operation]; ok && limit > 0 {
		return limit
	}
	return DefaultOperationLimit
}

// Backoff returns the delay before the retry that follows the given number
// of failed attempts. It doubles from InitialBackoff up to MaxBackoff.
func (c *Config) Backoff(failed int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < failed; i++ {
		d *= 2
		if c.MaxBackoff > 0 && d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}
