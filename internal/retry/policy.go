// Package retry runs operations that can fail transiently, such as writes to
// a history database shared by concurrent apitree processes.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       Backoff
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // retries after the first failure
}

// DefaultPolicy is exponential from 25ms, capped at 1s, with 4 retries.
func DefaultPolicy() Policy {
	return Policy{Mode: BackoffExponential, Initial: 25 * time.Millisecond, Max: time.Second, MaxRetries: 4}
}

// NewPolicy builds a policy; zero or invalid values fall back to defaults.
func NewPolicy(mode Backoff, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case BackoffFixed, BackoffLinear, BackoffExponential:
		p.Mode = mode
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay for the given retry (1-based).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case BackoffFixed:
		return p.Initial
	case BackoffExponential:
		if retryCount > 30 {
			return p.Max
		}
		d = p.Initial * (1 << (retryCount - 1))
	default:
		d = time.Duration(retryCount) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retries are exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !retryable(err) {
			return err
		}
		timer := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (retry aborted: %w)", err, ctx.Err())
		case <-timer.C:
		}
	}
}
