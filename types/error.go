// Package types provides unified type definitions for ragserve.
package types

import "fmt"

// ErrorCode 服务内统一错误码，用于对齐 HTTP 状态与降级策略。
type ErrorCode string

// 输入错误（进入管线前即被拒绝）
const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA"
	ErrDecodeFailed     ErrorCode = "DECODE_FAILED"
	ErrEmptyContent     ErrorCode = "EMPTY_CONTENT"
)

// 依赖错误（模型 / 向量索引）
const (
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrIndexError      ErrorCode = "INDEX_ERROR"
)

// 检索结果状态（非失败路径）
const (
	// ErrNoActiveContext 表示过滤后没有任何活跃文档块。
	// 这不是依赖故障：调用方应返回"无法回答"而不是 5xx。
	ErrNoActiveContext ErrorCode = "NO_ACTIVE_CONTEXT"

	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
