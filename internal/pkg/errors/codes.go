package errors

import (
	"fmt"
	"net/http"
)

// Code 错误码定义（业务码 + HTTP 状态 + 消息）
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// 通用错误 (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnsupportedType = 1003
	ErrServiceUnavail  = 1004

	// 认证 (2000-2999)
	ErrAuthenticationFailed = 2000
	ErrTokenExchange        = 2001

	// 模型服务 (3000-3999)
	ErrBackendProtocol  = 3000
	ErrBackendTransport = 3001
	ErrSpaceQuery       = 3002
	ErrSpaceTimeout     = 3003

	// 会话与渲染 (4000-4999)
	ErrUnmatchedToolResult = 4000
	ErrStateStore          = 4001
	ErrChannelSend         = 4002
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnsupportedType: {ErrUnsupportedType, http.StatusUnsupportedMediaType, "Unsupported media type"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrAuthenticationFailed: {ErrAuthenticationFailed, http.StatusUnauthorized, "Authentication failed"},
	ErrTokenExchange:        {ErrTokenExchange, http.StatusBadGateway, "Token exchange failed"},

	ErrBackendProtocol:  {ErrBackendProtocol, http.StatusBadGateway, "Unexpected serving endpoint response format"},
	ErrBackendTransport: {ErrBackendTransport, http.StatusBadGateway, "Serving endpoint request failed"},
	ErrSpaceQuery:       {ErrSpaceQuery, http.StatusBadGateway, "Agent space query failed"},
	ErrSpaceTimeout:     {ErrSpaceTimeout, http.StatusGatewayTimeout, "Agent space query timed out"},

	ErrUnmatchedToolResult: {ErrUnmatchedToolResult, http.StatusInternalServerError, "Tool result without a matching tool call"},
	ErrStateStore:          {ErrStateStore, http.StatusInternalServerError, "State store operation failed"},
	ErrChannelSend:         {ErrChannelSend, http.StatusBadGateway, "Failed to send activity"},
}

// GetCode 查询错误码，未知码按内部错误处理
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus 返回错误码对应的 HTTP 状态
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage 返回错误码对应的消息
func GetMessage(code int) string {
	return GetCode(code).Message
}

// FormatError 格式化错误消息
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
