package errors

import (
	"errors"
	"fmt"
)

// AppError 结构化应用错误
type AppError struct {
	Code    int    // 业务错误码
	Message string // 错误码消息
	Err     error  // 原始错误
	Details string // 附加信息
}

func (e *AppError) Error() string {
	if e.Err != nil {
		if e.Details != "" {
			return fmt.Sprintf("[%d] %s: %s: %v", e.Code, e.Message, e.Details, e.Err)
		}
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	return GetHTTPStatus(e.Code)
}

// New 按错误码创建错误
func New(code int, details ...string) *AppError {
	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Details: first(details),
	}
}

// Newf 按错误码创建错误，details 支持格式化
func Newf(code int, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 用错误码包装已有错误；已经是 AppError 时保留原错误码
func Wrap(err error, code int, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Code:    code,
		Message: GetMessage(code),
		Err:     err,
		Details: first(details),
	}
}

// Wrapf 包装错误并格式化 details
func Wrapf(err error, code int, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断 err 链上是否存在指定错误码的 AppError
func Is(err error, code int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ExtractCode 提取错误码
func ExtractCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternalServer
}

// GetDetails 提取错误详情
func GetDetails(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Details
		}
		if appErr.Err != nil {
			return appErr.Err.Error()
		}
		return ""
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func first(details []string) string {
	if len(details) > 0 {
		return details[0]
	}
	return ""
}
