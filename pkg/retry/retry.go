// Package retry re-runs database calls that failed for connectivity reasons.
// Translation and engine errors are returned after the first attempt: they
// would fail the same way again.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

// RetryableFunc - функция которую можно retry
type RetryableFunc func(ctx context.Context) error

// Retryer выполняет retry логику
type Retryer struct {
	config Config
}

// NewRetryer создает новый Retryer
func NewRetryer(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Retryer{config: config}, nil
}

// Do runs fn with cfg. It is shorthand for NewRetryer followed by Do.
func Do(ctx context.Context, cfg Config, fn RetryableFunc) error {
	r, err := NewRetryer(cfg)
	if err != nil {
		return err
	}
	return r.Do(ctx, fn)
}

// Do выполняет функцию с retry. Non-retryable errors are returned as they
// are; the last error after the final attempt is wrapped.
func (r *Retryer) Do(ctx context.Context, fn RetryableFunc) error {
	attempts := 0
	for {
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !r.isRetryable(err) {
			return err
		}

		if attempts >= r.config.MaxAttempts {
			if attempts == 1 {
				return err
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, err)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		delay := r.calculateDelay(attempts)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// calculateDelay вычисляет задержку для текущей попытки
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.BackoffStrategy {
	case BackoffLinear:
		// Linear: delay = initial * attempt
		delay = r.config.InitialDelay * time.Duration(attempt)

	case BackoffExponential:
		// Exponential: delay = initial * multiplier^(attempt-1)
		multiplier := math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.InitialDelay) * multiplier)

	default:
		delay = r.config.InitialDelay
	}

	if r.config.Jitter > 0 {
		delay += time.Duration(float64(delay) * r.config.Jitter * (rand.Float64()*2 - 1))
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

func (r *Retryer) isRetryable(err error) bool {
	if r.config.Retryable != nil {
		return r.config.Retryable(err)
	}
	return sqlerr.IsTransient(err)
}
