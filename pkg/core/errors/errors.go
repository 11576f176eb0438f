// Package errors 定义上下文装配引擎的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 装配相关错误
var (
	// ErrBudgetExceeded 所有压缩手段用尽后仍超出 Token 上限
	ErrBudgetExceeded = errors.New("token budget exceeded")
	// ErrTimeout 装配在截止时间内未完成
	ErrTimeout = errors.New("context preparation timeout")
	// ErrNotFound 引用的上下文不存在
	ErrNotFound = errors.New("context not found")
	// ErrInvalidCeiling Token 上限无效
	ErrInvalidCeiling = errors.New("invalid token ceiling")
	// ErrInvalidRequest 请求参数无效
	ErrInvalidRequest = errors.New("invalid context request")
)

// 压缩相关错误
var (
	// ErrCompressionFailed 结构化提取和文本降级均失败
	ErrCompressionFailed = errors.New("compression failed")
	// ErrExtractionFailed 结构化提取失败（可降级）
	ErrExtractionFailed = errors.New("structural extraction failed")
)

// 协作方相关错误
var (
	// ErrStorageFailure 协作方 I/O 失败
	ErrStorageFailure = errors.New("collaborator storage failure")
	// ErrIndexUnavailable 索引协作方不可用
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrMemoryUnavailable 记忆协作方不可用
	ErrMemoryUnavailable = errors.New("memory unavailable")
)

// 缓存相关错误
var (
	// ErrCacheClosed 缓存已关闭
	ErrCacheClosed = errors.New("cache closed")
	// ErrWarmQueueFull 预热队列已满
	ErrWarmQueueFull = errors.New("warm queue full")
)

// ContextError 包装装配过程中的意外故障，并携带请求 ID。
type ContextError struct {
	// RequestID 是关联的请求 ID。
	RequestID string
	// Stage 是故障发生的流水线阶段。
	Stage string
	// Err 是底层错误。
	Err error
}

// Error 实现 error 接口。
func (e *ContextError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("context error at %s (request %s): %v", e.Stage, e.RequestID, e.Err)
	}
	return fmt.Sprintf("context error (request %s): %v", e.RequestID, e.Err)
}

// Unwrap 返回底层错误。
func (e *ContextError) Unwrap() error {
	return e.Err
}

// NewContextError 创建 ContextError。
func NewContextError(requestID, stage string, err error) *ContextError {
	return &ContextError{RequestID: requestID, Stage: stage, Err: err}
}

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsHardFailure 判断错误是否为必须向调用方暴露的硬失败。
// 仅预算超限和超时会作为硬失败向上传播。
func IsHardFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBudgetExceeded) || errors.Is(err, ErrTimeout)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrStorageFailure) ||
		errors.Is(err, ErrIndexUnavailable) ||
		errors.Is(err, ErrMemoryUnavailable)
}
