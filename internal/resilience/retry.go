package resilience

import (
	"strings"
	"time"
)

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retry runs fn up to MaxAttempts times with exponential backoff. When
// isRetryable is non-nil, a non-retryable error aborts immediately.
func Retry(fn func() error, config *RetryConfig, isRetryable func(error) bool) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return err
		}
		if attempt < config.MaxAttempts-1 {
			time.Sleep(backoff)
			backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}
	return lastErr
}

// IsRetryableNetworkError reports whether an error looks like a transient
// network failure worth another attempt.
func IsRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"network is unreachable",
		"no route to host",
		"deadline exceeded",
		"timeout",
		"i/o timeout",
		"too many connections",
		"leader not available", // Kafka partition leadership in flight
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
