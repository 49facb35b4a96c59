package resilience

import (
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, fastRetryConfig(3), nil)
	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastRetryConfig(5), nil)
	if err != nil {
		t.Errorf("Expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	failure := errors.New("permanent")
	calls := 0
	err := Retry(func() error {
		calls++
		return failure
	}, fastRetryConfig(3), nil)
	if !errors.Is(err, failure) {
		t.Errorf("Expected last error returned, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad request")
	calls := 0
	err := Retry(func() error {
		calls++
		return fatal
	}, fastRetryConfig(5), func(err error) bool { return false })
	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call for non-retryable error, got %d", calls)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("kafka: leader not available"), true},
		{errors.New("invalid credentials"), false},
		{errors.New("malformed payload"), false},
	}
	for _, tt := range tests {
		if got := IsRetryableNetworkError(tt.err); got != tt.want {
			t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
