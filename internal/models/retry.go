// Package models defines retry configuration for StayPilot executions.
package models

import (
	"strings"
	"time"
)

// BackoffType selects the delay growth strategy between retry attempts.
type BackoffType string

const (
	// BackoffFixed waits the initial delay before every attempt.
	BackoffFixed BackoffType = "fixed"
	// BackoffExponential doubles the delay per attempt, capped at the maximum.
	BackoffExponential BackoffType = "exponential"
)

// Default retry parameters.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialDelayMs = 60000
	DefaultMaxDelayMs     = 3600000
)

// RetryConfig controls retry behavior for a rule's executions.
type RetryConfig struct {
	Enabled        bool        `json:"enabled"`
	MaxAttempts    int         `json:"max_attempts,omitempty"`
	BackoffType    BackoffType `json:"backoff_type,omitempty"`
	InitialDelayMs int64       `json:"initial_delay_ms,omitempty"`
	MaxDelayMs     int64       `json:"max_delay_ms,omitempty"`
	// RetryableErrors, when non-empty, restricts retries to errors containing
	// one of these substrings.
	RetryableErrors []string `json:"retryable_errors,omitempty"`
}

// DefaultRetryConfig returns the documented default retry parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Enabled:        true,
		MaxAttempts:    DefaultMaxAttempts,
		BackoffType:    BackoffExponential,
		InitialDelayMs: DefaultInitialDelayMs,
		MaxDelayMs:     DefaultMaxDelayMs,
	}
}

// normalized fills zero-valued fields with defaults.
func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffType == "" {
		c.BackoffType = BackoffExponential
	}
	if c.InitialDelayMs <= 0 {
		c.InitialDelayMs = DefaultInitialDelayMs
	}
	if c.MaxDelayMs <= 0 {
		c.MaxDelayMs = DefaultMaxDelayMs
	}
	return c
}

// EffectiveMaxAttempts returns the configured attempt limit with defaults applied.
func (c RetryConfig) EffectiveMaxAttempts() int {
	return c.normalized().MaxAttempts
}

// BackoffDelay returns the delay before the given retry attempt (1-based).
// Under exponential backoff the delay for attempt n is
// min(initial * 2^(n-1), max).
func (c RetryConfig) BackoffDelay(attempt int) time.Duration {
	cfg := c.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delayMs := cfg.InitialDelayMs
	if cfg.BackoffType == BackoffExponential {
		for i := 1; i < attempt; i++ {
			delayMs *= 2
			if delayMs >= cfg.MaxDelayMs {
				delayMs = cfg.MaxDelayMs
				break
			}
		}
	}
	if delayMs > cfg.MaxDelayMs {
		delayMs = cfg.MaxDelayMs
	}
	return time.Duration(delayMs) * time.Millisecond
}

// IsRetryable reports whether the given error message qualifies for retry.
// An empty allow-list means every error is retryable.
func (c RetryConfig) IsRetryable(errMsg string) bool {
	if len(c.RetryableErrors) == 0 {
		return true
	}
	for _, sub := range c.RetryableErrors {
		if sub != "" && strings.Contains(errMsg, sub) {
			return true
		}
	}
	return false
}
