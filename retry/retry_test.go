// ABOUTME: Tests for the exponential backoff retrier
package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestRetrier_Do(t *testing.T) {
	tests := map[string]struct {
		operation     func() error
		expectedCalls int
		wantErr       bool
	}{
		"success on first attempt": {
			operation:     func() error { return nil },
			expectedCalls: 1,
		},
		"success on second attempt": {
			operation: func() func() error {
				attempt := 0
				return func() error {
					attempt++
					if attempt == 1 {
						return errors.New("temporary error")
					}
					return nil
				}
			}(),
			expectedCalls: 2,
		},
		"failure after max attempts": {
			operation:     func() error { return errors.New("temporary error") },
			expectedCalls: 3,
			wantErr:       true,
		},
		"non-retryable error fails immediately": {
			operation:     func() error { return errors.New("permanent error") },
			expectedCalls: 1,
			wantErr:       true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			config := RetryConfig{
				MaxAttempts:   3,
				BaseDelay:     time.Millisecond,
				MaxDelay:      10 * time.Millisecond,
				BackoffFactor: 2.0,
				JitterFactor:  0.1,
			}

			calls := 0
			wrappedOp := func() error {
				calls++
				return tc.operation()
			}

			classifier := func(err error) bool {
				return err.Error() == "temporary error"
			}

			retrier := NewRetrier(config, classifier, testLogger())
			err := retrier.Do(context.Background(), wrappedOp)

			assert.Equal(t, tc.expectedCalls, calls)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:   5,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}

	calls := 0
	operation := func() error {
		calls++
		return errors.New("temporary error")
	}

	classifier := func(error) bool { return true }
	retrier := NewRetrier(config, classifier, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := retrier.Do(ctx, operation)
	duration := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, duration, 300*time.Millisecond)
	assert.GreaterOrEqual(t, calls, 1)
}

func TestRetrier_CalculateDelay(t *testing.T) {
	config := RetryConfig{
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}

	retrier := NewRetrier(config, nil, testLogger())

	tests := []struct {
		attempt  int
		minDelay time.Duration
		maxDelay time.Duration
	}{
		{1, 90 * time.Millisecond, 110 * time.Millisecond},
		{2, 180 * time.Millisecond, 220 * time.Millisecond},
		{3, 360 * time.Millisecond, 440 * time.Millisecond},
		{10, 900 * time.Millisecond, 1100 * time.Millisecond}, // capped at MaxDelay
	}

	for _, tc := range tests {
		delay := retrier.calculateDelay(tc.attempt)
		assert.GreaterOrEqual(t, delay, tc.minDelay, "delay too small for attempt %d", tc.attempt)
		assert.LessOrEqual(t, delay, tc.maxDelay, "delay too large for attempt %d", tc.attempt)
	}
}

func TestRetrier_ClassifierSeesWrappedErrors(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}

	sentinel := errors.New("transient")
	calls := 0
	operation := func() error {
		calls++
		return errors.Join(errors.New("call failed"), sentinel)
	}

	classifier := func(err error) bool { return errors.Is(err, sentinel) }
	retrier := NewRetrier(config, classifier, testLogger())

	err := retrier.Do(context.Background(), operation)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, sentinel)
}
