package healthchecker

import "time"

// Config holds configuration for health checking
type Config struct {
	Interval time.Duration // Health check frequency, 0 disables the loop
	Timeout  time.Duration // Timeout of a single probe
}

// DefaultConfig returns a health checker config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		Timeout:  time.Second,
	}
}
