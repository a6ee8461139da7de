// Package retry 提供远程调用的指数退避重试包装。
package retry

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/answerflow/types"
)

// Policy 定义重试策略配置。
type Policy struct {
	// MaxAttempts 是总调用次数上限（含首次调用）
	MaxAttempts int

	// InitialDelay 初始延迟时间
	InitialDelay time.Duration

	// MaxDelay 最大延迟时间（延迟单调不减，封顶于此）
	MaxDelay time.Duration

	// Multiplier 延迟时间倍增因子（指数退避）
	Multiplier float64

	// OnRetry 重试回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认的重试策略。
// 上限 15 次调用，适用于大部分生成/检索远程调用场景。
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:  15,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// Caller 重试器接口，包装任意易瞬时失败的远程调用。
type Caller interface {
	// Do 执行函数，瞬时失败时根据策略重试。
	Do(ctx context.Context, fn func() error) error

	// DoWithResult 执行函数并返回结果，瞬时失败时根据策略重试。
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffCaller 基于指数退避的重试器实现。
type backoffCaller struct {
	policy *Policy
	logger *zap.Logger
}

// NewBackoffCaller 创建指数退避重试器。
func NewBackoffCaller(policy *Policy, logger *zap.Logger) Caller {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &backoffCaller{policy: policy, logger: logger}
}

// Do 实现 Caller.Do。
func (c *backoffCaller) Do(ctx context.Context, fn func() error) error {
	_, err := c.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// DoWithResult 实现 Caller.DoWithResult。
// 核心重试逻辑：指数退避 + 瞬时错误分类。
// 非瞬时错误立即透传；调用次数耗尽后返回终止错误并不再调用 fn。
func (c *backoffCaller) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		// 首次执行不延迟
		if attempt > 1 {
			delay := c.calculateDelay(attempt)

			c.logger.Debug("retrying transient failure",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if c.policy.OnRetry != nil {
				c.policy.OnRetry(attempt, lastErr, delay)
			}

			// 等待延迟，同时监听 context 取消
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 非瞬时错误立即透传，不重试
		if !isTransient(err) {
			return nil, err
		}
	}

	// 调用次数耗尽
	c.logger.Warn("retries exhausted",
		zap.Int("attempts", c.policy.MaxAttempts),
		zap.Error(lastErr),
	)

	return nil, types.NewError(types.ErrRetriesExhausted,
		"retries exhausted after "+strconv.Itoa(c.policy.MaxAttempts)+" attempts").
		WithCause(lastErr)
}

// calculateDelay 计算第 attempt 次调用前的延迟。
// 延迟 = initial * multiplier^(attempt-2)，单调不减且封顶于 MaxDelay。
func (c *backoffCaller) calculateDelay(attempt int) time.Duration {
	delay := float64(c.policy.InitialDelay) * math.Pow(c.policy.Multiplier, float64(attempt-2))
	if delay > float64(c.policy.MaxDelay) {
		delay = float64(c.policy.MaxDelay)
	}
	return time.Duration(delay)
}

// isTransient 检查错误是否属于可重试的瞬时失败类别。
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if types.IsRetryable(err) {
		return true
	}
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}

// TransientError 将错误标记为瞬时失败。
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// WrapTransient 将错误包装为瞬时失败。
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransientError 检查错误是否被 WrapTransient 包装为瞬时失败。
func IsTransientError(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}
