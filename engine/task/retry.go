package task

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/flowgate/flowgate/engine/core"
)

// -----------------------------------------------------------------------------
// Retry configuration
// -----------------------------------------------------------------------------

// RetryConfig is the definition-level retry block, durations in human form.
type RetryConfig struct {
	InitialDelay      string  `json:"initial_delay,omitempty"      yaml:"initial_delay,omitempty"`
	MaxDelay          string  `json:"max_delay,omitempty"          yaml:"max_delay,omitempty"`
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty" yaml:"backoff_multiplier,omitempty"`
	MaxRetries        *int    `json:"max_retries,omitempty"        yaml:"max_retries,omitempty"`
}

// Policy resolves the config against defaults into an executable policy.
func (c *RetryConfig) Policy(defaults *RetryPolicy) (*RetryPolicy, error) {
	policy := *defaults
	if c == nil {
		return &policy, nil
	}
	if c.InitialDelay != "" {
		d, err := core.ParseHumanDuration(c.InitialDelay)
		if err != nil {
			return nil, err
		}
		policy.InitialDelay = d
	}
	if c.MaxDelay != "" {
		d, err := core.ParseHumanDuration(c.MaxDelay)
		if err != nil {
			return nil, err
		}
		policy.MaxDelay = d
	}
	if c.BackoffMultiplier > 0 {
		policy.BackoffMultiplier = c.BackoffMultiplier
	}
	if c.MaxRetries != nil {
		policy.MaxRetries = *c.MaxRetries
	}
	return &policy, nil
}

// -----------------------------------------------------------------------------
// Retry policy
// -----------------------------------------------------------------------------

// RetryPolicy computes backoff delays and retry eligibility. It is pure: a
// given (policy, error, attempt) tuple always yields the same answer. Delays
// are deliberately jitter-free so orchestration timing stays predictable.
type RetryPolicy struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	MaxRetries        int
}

func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		MaxRetries:        3,
	}
}

// CalculateDelay returns the wait before retry number attempt (1-based):
// min(initial * multiplier^(attempt-1), max). Attempts at or below zero wait
// nothing.
func (p *RetryPolicy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether retry number attempt (1-based) may run after
// err. Cancellation and timeout class errors are never retried; unclassified
// errors fail safe to non-retryable.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt > p.MaxRetries {
		return false
	}
	return IsRetryable(err)
}

// IsRetryable classifies an error: transient network failures retry,
// cancellation and timeouts never do, anything unknown does not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch core.CodeOf(err) {
	case core.CodeNetworkFailure:
		return true
	case core.CodeTimeout, core.CodeCanceled:
		return false
	}
	return false
}
