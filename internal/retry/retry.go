// Package retry provides bounded exponential backoff for transient failures
// against remote collaborators.
package retry

import (
	"context"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2.0,
	}
}

// Do executes fn with retry using default config, returning the last error
// when all attempts fail.
func Do(ctx context.Context, fn func() error) error {
	return DoWithConfig(ctx, DefaultConfig(), fn)
}

// DoWithConfig executes fn with retry using the provided config.
func DoWithConfig(ctx context.Context, cfg Config, fn func() error) error {
	var err error
	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		wait = time.Duration(float64(wait) * cfg.Multiplier)
		if wait > cfg.MaxWait {
			wait = cfg.MaxWait
		}
	}

	return err
}
