package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/snapq/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return nil
		}, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("eventual success", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("temporary error")
			}
			return nil
		}, 5, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("all attempts fail", func(t *testing.T) {
		attempts := 0
		expected := errors.New("persistent error")
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return expected
		}, 3, time.Millisecond)
		assert.Equal(t, expected, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("space mismatch is not retried", func(t *testing.T) {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return fmt.Errorf("%w: dimension 3", core.ErrEmbeddingSpaceMismatch)
		}, 5, time.Millisecond)
		assert.ErrorIs(t, err, core.ErrEmbeddingSpaceMismatch)
		assert.Equal(t, 1, attempts)
	})

	t.Run("context canceled between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		err := RetryWithBackoff(ctx, func() error {
			attempts++
			if attempts == 2 {
				cancel()
			}
			return errors.New("error")
		}, 10, time.Millisecond)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, attempts)
	})

	t.Run("context deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		attempts := 0
		err := RetryWithBackoff(ctx, func() error {
			attempts++
			time.Sleep(30 * time.Millisecond)
			return errors.New("error")
		}, 10, 10*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.LessOrEqual(t, attempts, 3)
	})

	t.Run("backoff grows", func(t *testing.T) {
		attempts := 0
		var delays []time.Duration
		last := time.Now()
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			if attempts > 1 {
				delays = append(delays, time.Since(last))
			}
			last = time.Now()
			if attempts < 4 {
				return errors.New("error")
			}
			return nil
		}, 5, 10*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, delays, 3)
		assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
		assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
	})

	t.Run("invalid max attempts", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			attempts := 0
			err := RetryWithBackoff(context.Background(), func() error {
				attempts++
				return nil
			}, n, time.Millisecond)
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			assert.Equal(t, 0, attempts)
		}
	})
}
