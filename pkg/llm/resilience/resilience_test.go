package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errEmbedUpstream = errors.New("embedding upstream unavailable")

func newFastBreaker(maxFailures int) *CircuitBreaker {
	return NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:      maxFailures,
		Timeout:          100 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	})
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	t.Run("成功调用保持关闭", func(t *testing.T) {
		cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("连续失败后打开并拒绝请求", func(t *testing.T) {
		cb := newFastBreaker(3)
		for i := 0; i < 3; i++ {
			assert.Error(t, cb.Execute(func() error { return errEmbedUpstream }))
		}
		assert.Equal(t, StateOpen, cb.State())

		err := cb.Execute(func() error { return nil })
		assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	})

	t.Run("超时后半开且成功调用恢复关闭", func(t *testing.T) {
		cb := newFastBreaker(2)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errEmbedUpstream })
		}
		assert.Equal(t, StateOpen, cb.State())

		time.Sleep(150 * time.Millisecond)

		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.State())
	})

	t.Run("半开状态下失败重新打开", func(t *testing.T) {
		cb := newFastBreaker(2)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errEmbedUpstream })
		}

		time.Sleep(150 * time.Millisecond)

		assert.Error(t, cb.Execute(func() error { return errEmbedUpstream }))
		assert.Equal(t, StateOpen, cb.State())
	})

	t.Run("Reset 恢复关闭状态", func(t *testing.T) {
		cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
		for i := 0; i < 5; i++ {
			_ = cb.Execute(func() error { return errEmbedUpstream })
		}
		assert.Equal(t, StateOpen, cb.State())

		cb.Reset()
		assert.Equal(t, StateClosed, cb.State())
		require.NoError(t, cb.Execute(func() error { return nil }))
	})
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	stats := cb.Stats()
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, 0, stats["failures"])

	_ = cb.Execute(func() error { return errEmbedUpstream })

	stats = cb.Stats()
	assert.Equal(t, 1, stats["failures"])
}

func retryAlways(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     maxAttempts,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		Multiplier:      2.0,
		RetryableErrors: func(_ error) bool { return true },
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("第一次成功不重试", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("瞬时失败后最终成功", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), retryAlways(3), func() error {
			calls++
			if calls < 3 {
				return errEmbedUpstream
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("达到最大次数后报错", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), retryAlways(3), func() error {
			calls++
			return errEmbedUpstream
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "max retry attempts")
	})

	t.Run("不可重试错误立即返回", func(t *testing.T) {
		badRequest := errors.New("embedding model not found")
		config := retryAlways(3)
		config.RetryableErrors = func(err error) bool {
			return !errors.Is(err, badRequest)
		}

		calls := 0
		err := RetryWithBackoff(context.Background(), config, func() error {
			calls++
			return badRequest
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Equal(t, badRequest, err)
	})

	t.Run("上下文取消中断重试", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		config := retryAlways(5)
		config.InitialDelay = 100 * time.Millisecond
		config.MaxDelay = time.Second

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		calls := 0
		err := RetryWithBackoff(ctx, config, func() error {
			calls++
			return errEmbedUpstream
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, calls, 2)
	})
}

func TestRetryWithCircuitBreaker(t *testing.T) {
	retryConfig := retryAlways(3)
	retryConfig.RetryableErrors = func(err error) bool {
		return !errors.Is(err, ErrCircuitBreakerOpen)
	}
	cb := newFastBreaker(2)

	// 重试耗尽失败额度后熔断器打开
	err := RetryWithCircuitBreaker(context.Background(), retryConfig, cb, func() error {
		return errEmbedUpstream
	})
	require.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())

	// 打开状态下直接拒绝，不再调用上游
	err = RetryWithCircuitBreaker(context.Background(), retryConfig, cb, func() error {
		return errEmbedUpstream
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
}

func TestDefaultConfigs(t *testing.T) {
	retryConfig := DefaultRetryConfig()
	assert.Equal(t, 3, retryConfig.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, retryConfig.InitialDelay)
	assert.Equal(t, 10*time.Second, retryConfig.MaxDelay)
	assert.Equal(t, 2.0, retryConfig.Multiplier)

	cbConfig := DefaultCircuitBreakerConfig()
	assert.Equal(t, 5, cbConfig.MaxFailures)
	assert.Equal(t, 60*time.Second, cbConfig.Timeout)
	assert.Equal(t, 1, cbConfig.HalfOpenMaxCalls)
}
