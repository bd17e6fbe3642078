package supervisor

import (
	"fmt"
	"time"
)

// Config holds configuration for the request supervisor.
type Config struct {
	// Workers is the number of worker groups handling requests.
	Workers int `mapstructure:"workers" default:"2"`
	// Threads is the number of handler slots per worker group.
	Threads int `mapstructure:"threads" default:"4"`
	// RequestTimeout is the maximum wall-clock time one request may take
	// before its worker group is killed and replaced.
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"1800s"`
	// Backlog is the capacity of the queue holding admitted requests that
	// are waiting for a free handler slot.
	Backlog int `mapstructure:"backlog" default:"128"`
}

// Validate checks that the configuration describes a runnable pool.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("supervisor: workers must be positive, got %d", c.Workers)
	}
	if c.Threads < 1 {
		return fmt.Errorf("supervisor: threads must be positive, got %d", c.Threads)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("supervisor: request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.Backlog < 0 {
		return fmt.Errorf("supervisor: backlog must not be negative, got %d", c.Backlog)
	}
	return nil
}

// MaxConcurrency is the number of requests that may run at the same time.
func (c Config) MaxConcurrency() int {
	return c.Workers * c.Threads
}
