package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 20 * time.Second
	}
	return c
}

// Retry runs op with exponential backoff for transient failures only.
// Rejections and decode failures stop immediately; retrying an identical
// program-level failure cannot change the outcome. The same policy bounds
// RPC rate-limit pressure, so reads and writes share it.
func Retry(ctx context.Context, cfg RetryConfig, logger *slog.Logger, label string, op func() error) error {
	cfg = cfg.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BaseDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		if logger != nil {
			logger.Warn("transient chain error, will retry",
				"op", label,
				"attempt", attempt,
				"max_attempts", cfg.MaxAttempts,
				"err", err,
			)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, cfg.MaxAttempts-1), ctx))
}
