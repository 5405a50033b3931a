package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.1,
	}
}

func TestRetryerDo(t *testing.T) {
	t.Run("success without retry", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		calls := 0
		err := r.Do(context.Background(), "op", func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient failures retried until success", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		calls := 0
		err := r.Do(context.Background(), "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent failure returns immediately", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		permanent := errors.New("syntax error near SELECT")
		calls := 0
		err := r.Do(context.Background(), "op", func() error {
			calls++
			return permanent
		})
		assert.Equal(t, 1, calls)
		assert.Equal(t, permanent, err)
	})

	t.Run("exhaustion wraps into RetryError", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		calls := 0
		err := r.Do(context.Background(), "flaky-op", func() error {
			calls++
			return errors.New("deadlock detected")
		})
		require.Error(t, err)
		assert.Equal(t, 4, calls) // initial attempt + 3 retries

		var retryErr *RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.True(t, retryErr.Exhausted)
		assert.Equal(t, "flaky-op", retryErr.Operation)
		assert.Equal(t, 4, retryErr.Attempts)
		assert.True(t, IsExhausted(err))
	})

	t.Run("exhausted error is not retried again", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		exhausted := &RetryError{
			Operation: "inner",
			Attempts:  4,
			LastError: errors.New("connection refused"),
			Exhausted: true,
		}
		calls := 0
		err := r.Do(context.Background(), "outer", func() error {
			calls++
			return exhausted
		})
		assert.Equal(t, 1, calls)
		assert.Equal(t, exhausted, err)
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		r := NewRetryer(fastConfig())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := r.Do(ctx, "op", func() error {
			return errors.New("connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("extra patterns extend classification", func(t *testing.T) {
		cfg := fastConfig()
		cfg.ExtraRetryable = []string{"429"}
		r := NewRetryer(cfg)
		calls := 0
		err := r.Do(context.Background(), "op", func() error {
			calls++
			if calls == 1 {
				return errors.New("upstream returned status 429")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}

func TestDoWithResult(t *testing.T) {
	r := NewRetryer(fastConfig())

	t.Run("returns the value on success", func(t *testing.T) {
		calls := 0
		got, err := DoWithResult(context.Background(), r, "fetch", func() (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("temporarily unavailable")
			}
			return "value", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "value", got)
		assert.Equal(t, 2, calls)
	})

	t.Run("zero value on permanent failure", func(t *testing.T) {
		got, err := DoWithResult(context.Background(), r, "fetch", func() (int, error) {
			return 0, errors.New("undefined table")
		})
		require.Error(t, err)
		assert.Zero(t, got)
	})
}

func TestNewRetryerDefaults(t *testing.T) {
	r := NewRetryer(Config{})
	assert.Equal(t, 3, r.config.MaxRetries)
	assert.Equal(t, time.Second, r.config.BaseDelay)
	assert.Equal(t, 30*time.Second, r.config.MaxDelay)
	assert.InDelta(t, 0.1, r.config.JitterFactor, 1e-9)
}
