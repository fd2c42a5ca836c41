package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`              // 业务错误码（0 表示成功）
	Message string      `json:"message,omitempty"` // 提示信息
	Data    interface{} `json:"data"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = struct{}{}
	}
	c.JSON(http.StatusOK, Response{Code: apperrors.Success, Data: data})
}

// Accepted 已受理，异步处理（202）
func Accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, Response{Code: apperrors.Success, Data: struct{}{}})
}

// HandleError 按 AppError 输出错误响应
func HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	code := apperrors.ExtractCode(err)
	c.AbortWithStatusJSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, apperrors.GetDetails(err)),
		Data:    struct{}{},
	})
}

// ErrorWithCode 按错误码输出错误响应
func ErrorWithCode(c *gin.Context, code int, details ...string) {
	c.AbortWithStatusJSON(apperrors.GetHTTPStatus(code), Response{
		Code:    code,
		Message: apperrors.FormatError(code, details...),
		Data:    struct{}{},
	})
}
