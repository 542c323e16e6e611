// Package config defines retry configuration shared by the gateways and workers.
package config

import (
	"time"
)

// RetryConfig holds a per-dependency retry tuple.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`
	// RetryDelay is the delay before the first retry.
	RetryDelay time.Duration `env:"DELAY" envDefault:"2s"`
	// Backoff is the exponential backoff multiplier.
	Backoff float64 `env:"BACKOFF" envDefault:"2.0"`
	// StabilityThreshold is the uptime after which a consumer's retry
	// budget resets on the next disconnect.
	StabilityThreshold time.Duration `env:"STABILITY_THRESHOLD" envDefault:"60s"`
}

// MergeRetry returns the tuple with the max of each field of a and b. The
// composite tasks handler touches both stores and retries with the larger
// budget of the two.
func MergeRetry(a, b RetryConfig) RetryConfig {
	out := a
	if b.MaxRetries > out.MaxRetries {
		out.MaxRetries = b.MaxRetries
	}
	if b.RetryDelay > out.RetryDelay {
		out.RetryDelay = b.RetryDelay
	}
	if b.Backoff > out.Backoff {
		out.Backoff = b.Backoff
	}
	if b.StabilityThreshold > out.StabilityThreshold {
		out.StabilityThreshold = b.StabilityThreshold
	}
	return out
}
