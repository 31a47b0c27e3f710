// Package retry implements bounded exponential backoff with jitter.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy defines retry behavior
type Policy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the policy used for destination flushes: 5 attempts
// starting at 1s, doubling up to 30s, with 25% jitter.
func Default() *Policy {
	return &Policy{
		MaxAttempts:     5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// None returns a policy that doesn't retry
func None() *Policy {
	return &Policy{
		MaxAttempts: 1,
	}
}

// Validate checks the policy bounds.
func (p *Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if p.Multiplier < 1 && p.MaxAttempts > 1 {
		return fmt.Errorf("multiplier must be >= 1, got %g", p.Multiplier)
	}
	if p.RandomizeFactor < 0 || p.RandomizeFactor > 1 {
		return fmt.Errorf("randomize factor must be within [0, 1], got %g", p.RandomizeFactor)
	}
	return nil
}

// Execute runs fn until it succeeds, the attempts are exhausted, or ctx is
// done. The attempt number passed to fn starts at 1.
func (p *Policy) Execute(ctx context.Context, fn func(attempt int) error) error {
	return p.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition runs fn with retry only while shouldRetry holds.
func (p *Policy) ExecuteWithCondition(ctx context.Context, fn func(attempt int) error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == p.MaxAttempts {
			break
		}

		delay := p.calculateDelay(attempt - 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after %d attempts: %w", attempt, lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", p.MaxAttempts, lastErr)
}

// calculateDelay calculates the delay for a given zero based retry
func (p *Policy) calculateDelay(retry int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retry))

	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	if p.RandomizeFactor > 0 {
		delta := delay * p.RandomizeFactor
		minDelay := delay - delta
		maxDelay := delay + delta
		delay = minDelay + (rand.Float64() * (maxDelay - minDelay)) //nolint:gosec // jitter only
	}

	return time.Duration(delay)
}

// Delay returns the delay before retry n (zero based)
func (p *Policy) Delay(retry int) time.Duration {
	return p.calculateDelay(retry)
}

// Clone creates a copy of the policy
func (p *Policy) Clone() *Policy {
	c := *p
	return &c
}
