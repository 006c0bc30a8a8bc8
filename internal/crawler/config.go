package crawler

import (
	"time"
)

// Config holds the configuration for a fetcher and the resolvers using it
type Config struct {
	Timeout      time.Duration // Per-hop request timeout
	MaxRedirects int           // Maximum hops attempted per host, redirects of either kind included
	UserAgent    string        // User agent string for requests
	MaxBodySize  int           // Response bodies are truncated to this many bytes (0 means colly's default)
	Instrument   bool          // Wrap the transport with OpenTelemetry instrumentation
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:      10 * time.Second,
		MaxRedirects: 5,
		UserAgent:    "HostProbe/1.0",
		MaxBodySize:  10 * 1024 * 1024,
	}
}
