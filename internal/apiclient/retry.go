package apiclient

import (
	"context"
	"errors"
	"math"
	"time"

	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"
)

// Policy defines retry behavior for transient transport failures.
type Policy struct {
	MaxRetries        int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay      time.Duration // Delay before the first retry
	MaxDelay          time.Duration // Cap on the delay between retries
	BackoffMultiplier float64       // Multiplier for exponential backoff
}

// DefaultPolicy returns the retry policy used for idempotent calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// NoRetry returns a policy that never retries.
func NoRetry() Policy {
	return Policy{
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		BackoffMultiplier: 1,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialDelay
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Validate checks if the retry policy configuration is valid.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}

// retry runs fn until it succeeds, fails with a non-retriable error, the
// policy is exhausted, or ctx is done.
func (p Policy) retry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Debug("%s succeeded on retry %d", op, attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetriable(err) || attempt == p.MaxRetries {
			break
		}

		delay := p.Delay(attempt)
		metrics.APIRetriesTotal.WithLabelValues(op).Inc()
		logging.Debug("%s failed (%v), retrying in %v (attempt %d/%d)", op, err, delay, attempt+1, p.MaxRetries)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}
