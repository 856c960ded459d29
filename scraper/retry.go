package scraper

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// RetryPolicy re-runs a fallible operation with exponential backoff.
type RetryPolicy struct {
	// MaxAttempts includes the first call; values below 1 mean one attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// MaxDelay caps a single wait; zero means uncapped.
	MaxDelay time.Duration
	// Retryable decides whether an error is worth another attempt. Nil uses
	// the default timeout/connection/rate-limit predicate.
	Retryable func(error) bool

	Metrics *Metrics
}

// NewRetryPolicy builds a policy from the retry settings in cfg.
func NewRetryPolicy(cfg *config.Config, metrics *Metrics) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries + 1,
		BaseDelay:   cfg.RetryBackoff,
		Multiplier:  cfg.RetryMultiplier,
		MaxDelay:    cfg.RetryBackoffMax,
		Metrics:     metrics,
	}
}

// Do calls op until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. It returns the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = isRetryable
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts || !retryable(err) {
			return err
		}

		delay := p.backoff(attempt)
		p.Metrics.IncRetries()
		slog.Debug("retrying operation",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		if waitErr := sleepContext(ctx, delay); waitErr != nil {
			return err
		}
	}
	return err
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	delay := time.Duration(float64(base) * math.Pow(multiplier, float64(attempt-1)))
	if max := p.MaxDelay; max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
