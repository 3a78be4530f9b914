// Package fault provides retry with exponential backoff and jitter.
package fault

import (
	"context"
	"math/rand"
	"time"
)

// JitterStrategy controls how backoff intervals are randomized.
type JitterStrategy int

const (
	// NoJitter uses the computed interval as is.
	NoJitter JitterStrategy = iota
	// FullJitter draws a random interval in [0, computed].
	FullJitter
)

// RetryConfig defines retry behavior parameters.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          JitterStrategy
}

// RetryOption configures a RetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(c *RetryConfig) { c.MaxAttempts = n }
}

// WithInitialInterval sets the first backoff interval.
func WithInitialInterval(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.InitialInterval = d }
}

// WithMaxInterval caps the backoff interval.
func WithMaxInterval(d time.Duration) RetryOption {
	return func(c *RetryConfig) { c.MaxInterval = d }
}

// WithMultiplier sets the backoff growth factor.
func WithMultiplier(m float64) RetryOption {
	return func(c *RetryConfig) { c.Multiplier = m }
}

// WithJitterStrategy sets the jitter strategy.
func WithJitterStrategy(s JitterStrategy) RetryOption {
	return func(c *RetryConfig) { c.Jitter = s }
}

// NewRetryConfig creates a retry configuration with defaults applied.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          FullJitter,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Retry runs op until it succeeds, the attempts are exhausted, or the
// context is canceled. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	interval := cfg.InitialInterval
	var err error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		wait := interval
		if cfg.Jitter == FullJitter {
			wait = time.Duration(rand.Int63n(int64(interval) + 1))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		interval = time.Duration(float64(interval) * cfg.Multiplier)
		if interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}

	return err
}
