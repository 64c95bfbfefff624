package models

import (
	"testing"
	"time"
)

func TestBackoffDelayMonotonicity(t *testing.T) {
	cfg := RetryConfig{
		Enabled:        true,
		BackoffType:    BackoffExponential,
		InitialDelayMs: 60000,
		MaxDelayMs:     3600000,
	}

	wantMs := []int64{60000, 120000, 240000, 480000, 960000, 1920000}
	for i, want := range wantMs {
		attempt := i + 1
		got := cfg.BackoffDelay(attempt)
		if got != time.Duration(want)*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want %dms", attempt, got, want)
		}
	}

	for attempt := 7; attempt <= 10; attempt++ {
		if got := cfg.BackoffDelay(attempt); got != 3600000*time.Millisecond {
			t.Errorf("attempt %d: delay = %v, want cap 3600000ms", attempt, got)
		}
	}
}

func TestBackoffDelayFixed(t *testing.T) {
	cfg := RetryConfig{BackoffType: BackoffFixed, InitialDelayMs: 5000}
	for attempt := 1; attempt <= 4; attempt++ {
		if got := cfg.BackoffDelay(attempt); got != 5*time.Second {
			t.Errorf("attempt %d: delay = %v, want 5s", attempt, got)
		}
	}
}

func TestBackoffDelayDefaults(t *testing.T) {
	var cfg RetryConfig
	if got := cfg.BackoffDelay(1); got != time.Duration(DefaultInitialDelayMs)*time.Millisecond {
		t.Errorf("zero config attempt 1 delay = %v", got)
	}
	if cfg.EffectiveMaxAttempts() != DefaultMaxAttempts {
		t.Errorf("zero config max attempts = %d", cfg.EffectiveMaxAttempts())
	}
}

func TestIsRetryable(t *testing.T) {
	open := RetryConfig{}
	if !open.IsRetryable("anything at all") {
		t.Error("empty allow-list must retry every error")
	}

	restricted := RetryConfig{RetryableErrors: []string{"timeout", "unavailable"}}
	if !restricted.IsRetryable("adapter timeout after 10s") {
		t.Error("matching substring must be retryable")
	}
	if restricted.IsRetryable("validation failed") {
		t.Error("non-matching error must not be retryable")
	}
}
