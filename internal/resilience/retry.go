package resilience

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// RetryConfig controls the bounded exponential backoff.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches the deployment pipeline defaults: three
// attempts, 2s base delay doubling per attempt, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Retrier invokes operations with classification-driven retries. Only
// transient errors are retried; everything else propagates on first
// failure.
type Retrier struct {
	cfg    RetryConfig
	logger hclog.Logger

	// sleep is replaceable in tests so backoff schedules can be asserted
	// without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier. Zero-valued config fields fall back to the
// defaults.
func NewRetrier(cfg RetryConfig, logger hclog.Logger) *Retrier {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Retrier{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayFor returns the backoff delay after the given 1-based attempt:
// base * multiplier^(attempt-1), capped at the configured maximum.
func (r *Retrier) DelayFor(attempt int) time.Duration {
	delay := r.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	if delay > r.cfg.MaxDelay {
		return r.cfg.MaxDelay
	}
	return delay
}

// Do runs op up to MaxAttempts times. Non-retryable errors propagate
// immediately; exhausting all attempts propagates the last error.
func (r *Retrier) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("operation recovered", "operation", name, "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			r.logger.Debug("error is not retryable", "operation", name, "kind", Classify(err), "error", err)
			return err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		delay := r.DelayFor(attempt)
		r.logger.Warn("operation failed, retrying",
			"operation", name,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"delay", delay,
			"error", err)

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	r.logger.Error("operation failed after all attempts", "operation", name, "attempts", r.cfg.MaxAttempts, "error", lastErr)
	return lastErr
}
