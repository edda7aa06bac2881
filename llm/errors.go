package llm

import (
	"net/http"

	"github.com/BaSui01/ragserve/types"
)

// upstreamError 包装网络级/解析级上游失败
func upstreamError(msg string) *types.Error {
	return types.NewError(types.ErrUpstreamError, msg).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)
}

// mapGeminiError 将 Gemini HTTP 状态映射为统一错误
func mapGeminiError(status int, msg string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable)
}
