package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
)

// CodeInternal 未知错误的错误码
const CodeInternal = "INTERNAL_ERROR"

// StatusOf 业务错误码对应的 HTTP 状态码
func StatusOf(code types.ErrorCode) int {
	switch code {
	case types.CodeValidation, types.CodeMissingVariable, types.CodeUnknownVariable:
		return http.StatusUnprocessableEntity
	case types.CodeNotFound:
		return http.StatusNotFound
	case types.CodeInvalidState:
		return http.StatusBadRequest
	case types.CodeForbidden:
		return http.StatusForbidden
	case types.CodeProviderRejected, types.CodePublishTarget:
		return http.StatusBadGateway
	case types.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// HandleError 将服务层错误写为统一错误响应
func HandleError(c *gin.Context, err error) {
	code := types.CodeOf(err)
	if code == "" {
		// 内部错误细节只写日志
		requestLogger(c).WithError(err).Error("unhandled error")
		Error(c, http.StatusInternalServerError, CodeInternal, "internal server error")
		return
	}
	Error(c, StatusOf(code), string(code), err.Error())
}

// ErrorHandlerMiddleware 处理通过 c.Error 记录但尚未写出的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		HandleError(c, c.Errors.Last().Err)
	}
}

// requestLogger 带 request_id 的日志记录器
func requestLogger(c *gin.Context) logrus.FieldLogger {
	logger, ok := c.Get(contextLogger)
	if !ok {
		return logrus.StandardLogger().WithField("request_id", c.GetString(contextRequestID))
	}
	return logger.(logrus.FieldLogger)
}
